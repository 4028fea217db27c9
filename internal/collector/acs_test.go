package collector

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commonwealth-analytics/thriving-index/internal/config"
	"github.com/commonwealth-analytics/thriving-index/internal/fetcher"
	"github.com/commonwealth-analytics/thriving-index/internal/measure"
)

func testFetcher() fetcher.Fetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{MaxRetries: 1})
}

func TestACS_Metadata(t *testing.T) {
	c := &ACS{}
	assert.Equal(t, "acs", c.Name())
	assert.Equal(t, Annual, c.Cadence())
}

func TestACS_Collect(t *testing.T) {
	// One county per state, with Fairfax County carrying a suppressed income
	// sentinel to check NaN mapping.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := r.URL.Query().Get("in")
		var body string
		if state == "state:51" {
			body = `[
["NAME","B19013_001E","B01003_001E","B15003_001E","B15003_022E","B15003_023E","B15003_024E","B15003_025E","state","county"],
["Fairfax County, Virginia","-666666666","1150000","800000","250000","120000","30000","20000","51","059"]]`
		} else {
			body = `[
["NAME","B19013_001E","B01003_001E","B15003_001E","B15003_022E","B15003_023E","B15003_024E","B15003_025E","state","county"],
["Somewhere County","52000","100000","60000","9000","2400","300","300","` + state[len("state:"):] + `","001"]]`
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body)) //nolint:errcheck
	}))
	defer srv.Close()

	c := &ACS{
		cfg:     &config.Config{Collect: config.CollectConfig{CensusKey: "test-key"}},
		baseURL: srv.URL,
	}

	series, err := c.Collect(context.Background(), testFetcher(), 2023, t.TempDir())
	require.NoError(t, err)
	require.Len(t, series, 3)

	byName := map[string]Series{}
	for _, s := range series {
		byName[s.Variable] = s
	}

	pop := byName["population"]
	assert.Equal(t, measure.Extensive, pop.Kind)
	assert.Len(t, pop.Records, len(footprintStateFIPS))

	income := byName["median_household_income"]
	assert.Equal(t, measure.Intensive, income.Kind)
	fairfax := findRecord(t, income.Records, "51059")
	assert.True(t, fairfax.Missing(), "suppressed sentinel should map to NaN")
	assert.Equal(t, float64(1150000), fairfax.Weight)

	degrees := byName["pct_bachelors_or_higher"]
	fairfaxDeg := findRecord(t, degrees.Records, "51059")
	assert.InDelta(t, 100*420000.0/800000.0, fairfaxDeg.Value, 1e-9)
	assert.Equal(t, float64(800000), fairfaxDeg.Weight)
}

func TestACS_Collect_BadPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not":"a table"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := &ACS{
		cfg:     &config.Config{Collect: config.CollectConfig{CensusKey: "test-key"}},
		baseURL: srv.URL,
	}

	_, err := c.Collect(context.Background(), testFetcher(), 2023, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse response")
}

func TestParseSourceFloat(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want float64
	}{
		{"plain", "52000", 52000},
		{"comma grouped", "1,234,567", 1234567},
		{"empty", "", math.NaN()},
		{"null literal", "null", math.NaN()},
		{"bea na", "(NA)", math.NaN()},
		{"bea disclosure", "(D)", math.NaN()},
		{"acs sentinel", "-666666666", math.NaN()},
		{"acs jam value", "-222222222", math.NaN()},
		{"negative ok", "-5", -5},
		{"garbage", "abc", math.NaN()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseSourceFloat(tt.in)
			if math.IsNaN(tt.want) {
				assert.True(t, math.IsNaN(got))
			} else {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func findRecord(t *testing.T, records []measure.CountyMeasure, fips string) measure.CountyMeasure {
	t.Helper()
	for _, r := range records {
		if r.FIPS == fips {
			return r
		}
	}
	t.Fatalf("no record for fips %s", fips)
	return measure.CountyMeasure{}
}
