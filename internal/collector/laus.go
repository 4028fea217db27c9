package collector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/commonwealth-analytics/thriving-index/internal/fetcher"
	"github.com/commonwealth-analytics/thriving-index/internal/measure"
)

const lausBaseURL = "https://www.bls.gov/lau"

// LAUS collects county labor force and unemployment rates from the BLS Local
// Area Unemployment Statistics annual average workbook.
type LAUS struct {
	baseURL string // test override
}

func (c *LAUS) Name() string     { return "laus" }
func (c *LAUS) Source() string   { return "BLS LAUS annual averages" }
func (c *LAUS) Cadence() Cadence { return Annual }

// laucnty workbook layout: the data starts after multi-row headers, with
// columns LAUS code, state FIPS, county FIPS, name, year, (blank), labor
// force, employed, unemployed, unemployment rate.
const lausSkipRows = 6

func (c *LAUS) Collect(ctx context.Context, f fetcher.Fetcher, year int, tempDir string) ([]Series, error) {
	log := zap.L().With(zap.String("collector", c.Name()))

	base := c.baseURL
	if base == "" {
		base = lausBaseURL
	}
	url := fmt.Sprintf("%s/laucnty%02d.xlsx", base, year%100)

	path := filepath.Join(tempDir, fmt.Sprintf("laucnty%02d.xlsx", year%100))
	if _, err := f.DownloadToFile(ctx, url, path); err != nil {
		return nil, eris.Wrapf(err, "laus: download year %d", year)
	}
	defer os.Remove(path)

	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{SkipRows: lausSkipRows})
	if err != nil {
		return nil, eris.Wrap(err, "laus: read workbook")
	}

	inFootprint := make(map[string]bool, len(footprintStateFIPS))
	for _, s := range footprintStateFIPS {
		inFootprint[s] = true
	}

	var laborForce, unemployment []measure.CountyMeasure
	for _, row := range rows {
		if len(row) < 10 {
			continue
		}
		stateFIPS := strings.TrimSpace(row[1])
		countyFIPS := strings.TrimSpace(row[2])
		if len(stateFIPS) != 2 || len(countyFIPS) != 3 || !inFootprint[stateFIPS] {
			continue
		}
		fips := stateFIPS + countyFIPS

		lf := parseSourceFloat(row[6])
		rate := parseSourceFloat(row[9])

		laborForce = append(laborForce, measure.NewCountyMeasure(fips, lf))
		unemployment = append(unemployment, measure.CountyMeasure{
			FIPS:   fips,
			Value:  rate,
			Weight: lf,
		})
	}

	if len(laborForce) == 0 {
		return nil, eris.Errorf("laus: no footprint counties in workbook for year %d", year)
	}
	log.Info("collected LAUS counties", zap.Int("counties", len(laborForce)), zap.Int("year", year))

	return []Series{
		{Variable: "labor_force", Kind: measure.Extensive, Records: laborForce},
		{Variable: "unemployment_rate", Kind: measure.Intensive, Records: unemployment},
	}, nil
}
