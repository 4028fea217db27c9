package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commonwealth-analytics/thriving-index/internal/matching"
	"github.com/commonwealth-analytics/thriving-index/internal/measure"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// --- County series ---

func TestSQLite_CountySeries_SaveAndLoad(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	records := []measure.CountyMeasure{
		{FIPS: "51059", Value: 1000, Weight: 100},
		{FIPS: "51600", Value: 2000, Weight: 50},
	}
	require.NoError(t, st.SaveCountySeries(ctx, "median_income", measure.Intensive, records))

	kind, got, err := st.LoadCountySeries(ctx, "median_income")
	require.NoError(t, err)
	assert.Equal(t, measure.Intensive, kind)
	require.Len(t, got, 2)
	assert.Equal(t, "51059", got[0].FIPS)
	assert.Equal(t, float64(1000), got[0].Value)
	assert.Equal(t, float64(100), got[0].Weight)
}

func TestSQLite_CountySeries_NaNRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	records := []measure.CountyMeasure{
		{FIPS: "51059", Value: math.NaN(), Weight: 100},
		measure.NewCountyMeasure("51600", 2000),
	}
	require.NoError(t, st.SaveCountySeries(ctx, "pct_bachelors", measure.Intensive, records))

	_, got, err := st.LoadCountySeries(ctx, "pct_bachelors")
	require.NoError(t, err)
	require.Len(t, got, 2)

	// NULL value comes back as NaN, not zero.
	assert.True(t, math.IsNaN(got[0].Value))
	assert.Equal(t, float64(100), got[0].Weight)
	assert.Equal(t, float64(2000), got[1].Value)
	assert.True(t, math.IsNaN(got[1].Weight))
}

func TestSQLite_CountySeries_SaveReplaces(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first := []measure.CountyMeasure{
		measure.NewCountyMeasure("51059", 1),
		measure.NewCountyMeasure("51600", 2),
	}
	require.NoError(t, st.SaveCountySeries(ctx, "population", measure.Extensive, first))

	second := []measure.CountyMeasure{measure.NewCountyMeasure("51059", 9)}
	require.NoError(t, st.SaveCountySeries(ctx, "population", measure.Extensive, second))

	kind, got, err := st.LoadCountySeries(ctx, "population")
	require.NoError(t, err)
	assert.Equal(t, measure.Extensive, kind)
	require.Len(t, got, 1)
	assert.Equal(t, float64(9), got[0].Value)
}

func TestSQLite_CountySeries_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, _, err := st.LoadCountySeries(context.Background(), "no_such_variable")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_ListCountyVariables(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := []measure.CountyMeasure{measure.NewCountyMeasure("51059", 1)}
	require.NoError(t, st.SaveCountySeries(ctx, "population", measure.Extensive, rec))
	require.NoError(t, st.SaveCountySeries(ctx, "median_income", measure.Intensive, rec))

	vars, err := st.ListCountyVariables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"median_income", "population"}, vars)
}

// --- Regional series ---

func TestSQLite_RegionalSeries_SaveAndLoad(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	series := map[string]measure.RegionalMeasure{
		"VA-NOVA": {RegionCode: "VA-NOVA", Value: 3000, CountiesIncluded: 2, CountiesTotal: 2},
		"NC-TRI":  {RegionCode: "NC-TRI", Value: 1500, CountiesIncluded: 3, CountiesTotal: 4},
	}
	report := &measure.Report{Records: 6, DroppedMissing: 1, RegionsCovered: 2, RegionsTotal: 54}
	require.NoError(t, st.SaveRegionalSeries(ctx, "population", series, report))

	got, err := st.LoadRegionalSeries(ctx, "population")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, float64(3000), got["VA-NOVA"].Value)
	assert.Equal(t, 3, got["NC-TRI"].CountiesIncluded)

	vars, err := st.ListRegionalVariables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"population"}, vars)
}

func TestSQLite_RegionalSeries_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.LoadRegionalSeries(context.Background(), "no_such_variable")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_AggregationReport_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	series := map[string]measure.RegionalMeasure{
		"VA-NOVA": {RegionCode: "VA-NOVA", Value: 4.1, CountiesIncluded: 2, CountiesTotal: 2},
	}
	report := &measure.Report{Records: 10, DroppedMissing: 3, RegionsCovered: 1, RegionsTotal: 54}
	require.NoError(t, st.SaveRegionalSeries(ctx, "unemployment_rate", series, report))

	got, err := st.LoadAggregationReport(ctx, "unemployment_rate")
	require.NoError(t, err)
	assert.Equal(t, report, got)

	_, err = st.LoadAggregationReport(ctx, "no_such_variable")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

// --- Match runs ---

func TestSQLite_MatchRuns_SaveAndLatest(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first := &matching.Artifact{
		Targets: map[string]matching.TargetEntry{
			"VA-NOVA": {RegionName: "Northern Virginia", Peers: []matching.PeerEntry{
				{Rank: 1, RegionCode: "NC-TRI", RegionName: "Research Triangle", Distance: 0.5},
			}},
		},
		Metadata: matching.Metadata{K: 10, RegionsInMatrix: 54},
	}
	id1, err := st.SaveMatchRun(ctx, first)
	require.NoError(t, err)
	assert.NotEmpty(t, id1)

	second := &matching.Artifact{Metadata: matching.Metadata{K: 5, RegionsInMatrix: 40}}
	id2, err := st.SaveMatchRun(ctx, second)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	gotID, got, err := st.LatestMatchRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, id2, gotID)
	assert.Equal(t, 5, got.Metadata.K)
}

func TestSQLite_MatchRuns_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, _, err := st.LatestMatchRun(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no match runs")
}
