package store

import (
	"context"
	"math"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commonwealth-analytics/thriving-index/internal/matching"
	"github.com/commonwealth-analytics/thriving-index/internal/measure"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_SaveCountySeries(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM county_measures`).
		WithArgs("population").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(`INSERT INTO county_measures`).
		WithArgs("population", "extensive", "51059", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	records := []measure.CountyMeasure{measure.NewCountyMeasure("51059", 1000)}
	err := s.SaveCountySeries(context.Background(), "population", measure.Extensive, records)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadCountySeries_NullIsNaN(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	val := 1000.0
	rows := pgxmock.NewRows([]string{"kind", "fips", "value", "weight"}).
		AddRow("intensive", "51059", &val, (*float64)(nil)).
		AddRow("intensive", "51600", (*float64)(nil), &val)
	mock.ExpectQuery(`SELECT kind, fips, value, weight FROM county_measures`).
		WithArgs("median_income").
		WillReturnRows(rows)

	kind, got, err := s.LoadCountySeries(context.Background(), "median_income")
	require.NoError(t, err)
	assert.Equal(t, measure.Intensive, kind)
	require.Len(t, got, 2)
	assert.Equal(t, 1000.0, got[0].Value)
	assert.True(t, math.IsNaN(got[0].Weight))
	assert.True(t, math.IsNaN(got[1].Value))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadCountySeries_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"kind", "fips", "value", "weight"})
	mock.ExpectQuery(`SELECT kind, fips, value, weight FROM county_measures`).
		WithArgs("missing").
		WillReturnRows(rows)

	_, _, err := s.LoadCountySeries(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRegionalSeries_WithReport(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM regional_measures`).
		WithArgs("population").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`INSERT INTO regional_measures`).
		WithArgs("population", "VA-NOVA", 3000.0, 2, 2, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`ON CONFLICT \(variable\)`).
		WithArgs("population", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	series := map[string]measure.RegionalMeasure{
		"VA-NOVA": {RegionCode: "VA-NOVA", Value: 3000, CountiesIncluded: 2, CountiesTotal: 2},
	}
	report := &measure.Report{Records: 2, RegionsCovered: 1, RegionsTotal: 54}
	err := s.SaveRegionalSeries(context.Background(), "population", series, report)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestMatchRun_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, artifact FROM match_runs`).
		WillReturnError(pgx.ErrNoRows)

	_, _, err := s.LatestMatchRun(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no match runs")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveMatchRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO match_runs`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	art := &matching.Artifact{Metadata: matching.Metadata{K: 10}}
	id, err := s.SaveMatchRun(context.Background(), art)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}
