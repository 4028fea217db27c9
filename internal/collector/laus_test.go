package collector

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/commonwealth-analytics/thriving-index/internal/measure"
)

// buildLAUSWorkbook builds a laucnty-shaped workbook: header rows followed by
// data rows of LAUS code, state FIPS, county FIPS, name, year, blank, labor
// force, employed, unemployed, rate.
func buildLAUSWorkbook(t *testing.T, dataRows [][]string) []byte {
	t.Helper()

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("laucnty")
	require.NoError(t, err)

	for range lausSkipRows {
		sheet.AddRow().AddCell().SetString("header")
	}
	for _, row := range dataRows {
		r := sheet.AddRow()
		for _, cell := range row {
			r.AddCell().SetString(cell)
		}
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestLAUS_Metadata(t *testing.T) {
	c := &LAUS{}
	assert.Equal(t, "laus", c.Name())
	assert.Equal(t, Annual, c.Cadence())
}

func TestLAUS_Collect(t *testing.T) {
	workbook := buildLAUSWorkbook(t, [][]string{
		{"CN5105900000000", "51", "059", "Fairfax County, VA", "2023", "", "620,000", "600,000", "20,000", "3.2"},
		{"CN3718300000000", "37", "183", "Wake County, NC", "2023", "", "650,000", "630,000", "20,000", "3.1"},
		// Outside the footprint; must be filtered.
		{"CN0600100000000", "06", "001", "Alameda County, CA", "2023", "", "800,000", "770,000", "30,000", "3.8"},
		// Missing rate maps to NaN but the county still appears.
		{"CN2100100000000", "21", "001", "Adair County, KY", "2023", "", "8,000", "7,700", "300", "N.A."},
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/laucnty23.xlsx", r.URL.Path)
		w.Write(workbook) //nolint:errcheck
	}))
	defer srv.Close()

	c := &LAUS{baseURL: srv.URL}
	series, err := c.Collect(context.Background(), testFetcher(), 2023, t.TempDir())
	require.NoError(t, err)
	require.Len(t, series, 2)

	byName := map[string]Series{}
	for _, s := range series {
		byName[s.Variable] = s
	}

	lf := byName["labor_force"]
	assert.Equal(t, measure.Extensive, lf.Kind)
	require.Len(t, lf.Records, 3, "California county should be filtered out")
	assert.Equal(t, float64(620000), findRecord(t, lf.Records, "51059").Value)

	rate := byName["unemployment_rate"]
	assert.Equal(t, measure.Intensive, rate.Kind)
	fairfax := findRecord(t, rate.Records, "51059")
	assert.Equal(t, 3.2, fairfax.Value)
	assert.Equal(t, float64(620000), fairfax.Weight)

	adair := findRecord(t, rate.Records, "21001")
	assert.True(t, adair.Missing())
	assert.Equal(t, float64(8000), adair.Weight)
}

func TestLAUS_Collect_DownloadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := &LAUS{baseURL: srv.URL}
	_, err := c.Collect(context.Background(), testFetcher(), 2023, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download")
}
