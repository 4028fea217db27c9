package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/commonwealth-analytics/thriving-index/internal/config"
	"github.com/commonwealth-analytics/thriving-index/internal/fetcher"
	"github.com/commonwealth-analytics/thriving-index/internal/measure"
)

const acsBaseURL = "https://api.census.gov/data"

// acsVariables requested per county. B19013 is median household income,
// B01003 total population, B15003 educational attainment for age 25+
// (001 total, 022 bachelor's, 023 master's, 024 professional, 025 doctorate).
const acsVariables = "B19013_001E,B01003_001E,B15003_001E,B15003_022E,B15003_023E,B15003_024E,B15003_025E"

// ACS collects median household income, population, and educational
// attainment from the Census ACS 5-year estimates.
type ACS struct {
	cfg     *config.Config
	baseURL string // test override
}

func (c *ACS) Name() string     { return "acs" }
func (c *ACS) Source() string   { return "Census ACS 5-year" }
func (c *ACS) Cadence() Cadence { return Annual }

func (c *ACS) Collect(ctx context.Context, f fetcher.Fetcher, year int, tempDir string) ([]Series, error) {
	log := zap.L().With(zap.String("collector", c.Name()))

	base := c.baseURL
	if base == "" {
		base = acsBaseURL
	}

	var population, income, bachelors []measure.CountyMeasure

	for _, stateFIPS := range footprintStateFIPS {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		url := fmt.Sprintf("%s/%d/acs/acs5?get=NAME,%s&for=county:*&in=state:%s&key=%s",
			base, year, acsVariables, stateFIPS, c.cfg.Collect.CensusKey)

		rows, err := c.fetchState(ctx, f, url)
		if err != nil {
			return nil, eris.Wrapf(err, "acs: state %s", stateFIPS)
		}

		for _, row := range rows {
			population = append(population, measure.NewCountyMeasure(row.fips, row.population))
			income = append(income, measure.CountyMeasure{
				FIPS:   row.fips,
				Value:  row.medianIncome,
				Weight: row.population,
			})
			bachelors = append(bachelors, measure.CountyMeasure{
				FIPS:   row.fips,
				Value:  row.pctBachelors(),
				Weight: row.adults,
			})
		}
		log.Info("collected ACS state", zap.String("state", stateFIPS), zap.Int("counties", len(rows)))
	}

	return []Series{
		{Variable: "population", Kind: measure.Extensive, Records: population},
		{Variable: "median_household_income", Kind: measure.Intensive, Records: income},
		{Variable: "pct_bachelors_or_higher", Kind: measure.Intensive, Records: bachelors},
	}, nil
}

type acsRow struct {
	fips         string
	medianIncome float64
	population   float64
	adults       float64 // age 25+ universe
	degreeCount  float64 // bachelor's and above
}

// pctBachelors returns the share of adults 25+ holding a bachelor's degree or
// higher, as a percentage. NaN when the universe is missing or zero.
func (r acsRow) pctBachelors() float64 {
	if math.IsNaN(r.adults) || math.IsNaN(r.degreeCount) || r.adults <= 0 {
		return math.NaN()
	}
	return 100 * r.degreeCount / r.adults
}

// fetchState downloads one state's county table. The Census API returns a
// JSON array of string arrays with a header row first.
func (c *ACS) fetchState(ctx context.Context, f fetcher.Fetcher, url string) ([]acsRow, error) {
	body, err := f.Download(ctx, url)
	if err != nil {
		return nil, eris.Wrap(err, "acs: download")
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, eris.Wrap(err, "acs: read body")
	}

	var table [][]string
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, eris.Wrap(err, "acs: parse response")
	}
	if len(table) < 2 {
		return nil, eris.New("acs: response has no data rows")
	}

	cols := make(map[string]int, len(table[0]))
	for i, name := range table[0] {
		cols[name] = i
	}
	for _, required := range []string{"state", "county", "B19013_001E", "B01003_001E", "B15003_001E"} {
		if _, ok := cols[required]; !ok {
			return nil, eris.Errorf("acs: response missing column %s", required)
		}
	}

	var rows []acsRow
	for _, rec := range table[1:] {
		row := acsRow{
			fips:         rec[cols["state"]] + rec[cols["county"]],
			medianIncome: parseSourceFloat(rec[cols["B19013_001E"]]),
			population:   parseSourceFloat(rec[cols["B01003_001E"]]),
			adults:       parseSourceFloat(rec[cols["B15003_001E"]]),
		}
		row.degreeCount = sumACSCounts(rec, cols, "B15003_022E", "B15003_023E", "B15003_024E", "B15003_025E")
		rows = append(rows, row)
	}
	return rows, nil
}

// sumACSCounts adds the named count columns, treating a missing column or
// value as missing for the whole sum.
func sumACSCounts(rec []string, cols map[string]int, names ...string) float64 {
	var total float64
	for _, name := range names {
		i, ok := cols[name]
		if !ok {
			return math.NaN()
		}
		v := parseSourceFloat(rec[i])
		if math.IsNaN(v) {
			return math.NaN()
		}
		total += v
	}
	return total
}
