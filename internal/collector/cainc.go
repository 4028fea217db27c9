package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/commonwealth-analytics/thriving-index/internal/config"
	"github.com/commonwealth-analytics/thriving-index/internal/fetcher"
	"github.com/commonwealth-analytics/thriving-index/internal/measure"
)

const caincBaseURL = "https://apps.bea.gov/api/data"

// CAINC collects per-capita personal income from the BEA Regional accounts
// (table CAINC1). Line 3 is per-capita income, line 2 the population
// denominator it is weighted by.
type CAINC struct {
	cfg     *config.Config
	baseURL string // test override
}

func (c *CAINC) Name() string     { return "cainc" }
func (c *CAINC) Source() string   { return "BEA Regional CAINC1" }
func (c *CAINC) Cadence() Cadence { return Annual }

type beaResponse struct {
	BEAAPI struct {
		Results struct {
			Data []struct {
				GeoFips   string `json:"GeoFips"`
				GeoName   string `json:"GeoName"`
				DataValue string `json:"DataValue"`
			} `json:"Data"`
			Error *struct {
				Detail string `json:"APIErrorDescription"`
			} `json:"Error"`
		} `json:"Results"`
	} `json:"BEAAPI"`
}

func (c *CAINC) Collect(ctx context.Context, f fetcher.Fetcher, year int, tempDir string) ([]Series, error) {
	log := zap.L().With(zap.String("collector", c.Name()))

	income, err := c.fetchLine(ctx, f, year, 3)
	if err != nil {
		return nil, eris.Wrap(err, "cainc: per-capita income")
	}
	population, err := c.fetchLine(ctx, f, year, 2)
	if err != nil {
		return nil, eris.Wrap(err, "cainc: population")
	}

	fipsCodes := make([]string, 0, len(income))
	for fips := range income {
		fipsCodes = append(fipsCodes, fips)
	}
	sort.Strings(fipsCodes)

	records := make([]measure.CountyMeasure, 0, len(fipsCodes))
	for _, fips := range fipsCodes {
		weight, ok := population[fips]
		if !ok {
			weight = math.NaN()
		}
		records = append(records, measure.CountyMeasure{
			FIPS:   fips,
			Value:  income[fips],
			Weight: weight,
		})
	}

	if len(records) == 0 {
		return nil, eris.Errorf("cainc: no footprint counties for year %d", year)
	}
	log.Info("collected CAINC counties", zap.Int("counties", len(records)), zap.Int("year", year))

	return []Series{
		{Variable: "per_capita_income", Kind: measure.Intensive, Records: records},
	}, nil
}

// fetchLine downloads one CAINC1 line code for all counties and returns the
// footprint subset keyed by FIPS. BEA still serves latin-1 bodies, so the
// response is transcoded before decoding.
func (c *CAINC) fetchLine(ctx context.Context, f fetcher.Fetcher, year, lineCode int) (map[string]float64, error) {
	base := c.baseURL
	if base == "" {
		base = caincBaseURL
	}
	url := fmt.Sprintf("%s/?UserID=%s&method=GetData&datasetname=Regional&TableName=CAINC1&LineCode=%d&GeoFips=COUNTY&Year=%d&ResultFormat=JSON",
		base, c.cfg.Collect.BEAKey, lineCode, year)

	body, err := f.Download(ctx, url)
	if err != nil {
		return nil, eris.Wrap(err, "cainc: download")
	}
	defer body.Close()

	decoded, err := fetcher.DecodeCharset(body, "latin1")
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(decoded)
	if err != nil {
		return nil, eris.Wrap(err, "cainc: read body")
	}

	var resp beaResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, eris.Wrap(err, "cainc: parse response")
	}
	if resp.BEAAPI.Results.Error != nil {
		return nil, eris.Errorf("cainc: api error: %s", resp.BEAAPI.Results.Error.Detail)
	}

	inFootprint := make(map[string]bool, len(footprintStateFIPS))
	for _, s := range footprintStateFIPS {
		inFootprint[s] = true
	}

	values := make(map[string]float64)
	for _, d := range resp.BEAAPI.Results.Data {
		if len(d.GeoFips) != 5 || !inFootprint[d.GeoFips[:2]] {
			continue
		}
		if d.GeoFips[2:] == "000" { // statewide rollup rows
			continue
		}
		values[d.GeoFips] = parseSourceFloat(d.DataValue)
	}
	return values, nil
}
