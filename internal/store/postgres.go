package store

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/commonwealth-analytics/thriving-index/internal/matching"
	"github.com/commonwealth-analytics/thriving-index/internal/measure"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS county_measures (
	variable     TEXT NOT NULL,
	kind         TEXT NOT NULL,
	fips         TEXT NOT NULL,
	value        DOUBLE PRECISION,
	weight       DOUBLE PRECISION,
	collected_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (variable, fips)
);

CREATE TABLE IF NOT EXISTS regional_measures (
	variable          TEXT NOT NULL,
	region_code       TEXT NOT NULL,
	value             DOUBLE PRECISION NOT NULL,
	counties_included INTEGER NOT NULL,
	counties_total    INTEGER NOT NULL,
	aggregated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (variable, region_code)
);

CREATE TABLE IF NOT EXISTS aggregation_reports (
	variable      TEXT PRIMARY KEY,
	report        JSONB NOT NULL,
	aggregated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS match_runs (
	id         TEXT PRIMARY KEY,
	artifact   JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_county_measures_variable ON county_measures(variable);
CREATE INDEX IF NOT EXISTS idx_regional_measures_variable ON regional_measures(variable);
CREATE INDEX IF NOT EXISTS idx_match_runs_created_at ON match_runs(created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveCountySeries(ctx context.Context, variable string, kind measure.Kind, records []measure.CountyMeasure) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM county_measures WHERE variable = $1`, variable,
	); err != nil {
		return eris.Wrapf(err, "postgres: clear county series %s", variable)
	}

	now := time.Now().UTC()
	for _, rec := range records {
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO county_measures (variable, kind, fips, value, weight, collected_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			variable, string(kind), rec.FIPS, floatPtr(rec.Value), floatPtr(rec.Weight), now,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert county measure %s/%s", variable, rec.FIPS)
		}
	}
	return nil
}

func (s *PostgresStore) LoadCountySeries(ctx context.Context, variable string) (measure.Kind, []measure.CountyMeasure, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT kind, fips, value, weight FROM county_measures WHERE variable = $1 ORDER BY fips`,
		variable,
	)
	if err != nil {
		return "", nil, eris.Wrapf(err, "postgres: load county series %s", variable)
	}
	defer rows.Close()

	var kind measure.Kind
	var records []measure.CountyMeasure
	for rows.Next() {
		var kindStr string
		var rec measure.CountyMeasure
		var value, weight *float64
		if err := rows.Scan(&kindStr, &rec.FIPS, &value, &weight); err != nil {
			return "", nil, eris.Wrap(err, "postgres: scan county measure")
		}
		kind = measure.Kind(kindStr)
		rec.Value = derefOrNaN(value)
		rec.Weight = derefOrNaN(weight)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return "", nil, eris.Wrap(err, "postgres: iterate county series")
	}
	if len(records) == 0 {
		return "", nil, eris.Errorf("postgres: county series not found: %s", variable)
	}
	return kind, records, nil
}

func (s *PostgresStore) ListCountyVariables(ctx context.Context) ([]string, error) {
	return s.listVariables(ctx, `SELECT DISTINCT variable FROM county_measures ORDER BY variable`)
}

func (s *PostgresStore) SaveRegionalSeries(ctx context.Context, variable string, series map[string]measure.RegionalMeasure, report *measure.Report) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM regional_measures WHERE variable = $1`, variable,
	); err != nil {
		return eris.Wrapf(err, "postgres: clear regional series %s", variable)
	}

	now := time.Now().UTC()
	for _, rm := range series {
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO regional_measures (variable, region_code, value, counties_included, counties_total, aggregated_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			variable, rm.RegionCode, rm.Value, rm.CountiesIncluded, rm.CountiesTotal, now,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert regional measure %s/%s", variable, rm.RegionCode)
		}
	}

	if report != nil {
		reportJSON, err := json.Marshal(report)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal report")
		}
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO aggregation_reports (variable, report, aggregated_at) VALUES ($1, $2, $3)
			 ON CONFLICT (variable) DO UPDATE SET report = EXCLUDED.report, aggregated_at = EXCLUDED.aggregated_at`,
			variable, reportJSON, now,
		); err != nil {
			return eris.Wrapf(err, "postgres: upsert report %s", variable)
		}
	}
	return nil
}

func (s *PostgresStore) LoadRegionalSeries(ctx context.Context, variable string) (map[string]measure.RegionalMeasure, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT region_code, value, counties_included, counties_total FROM regional_measures WHERE variable = $1`,
		variable,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load regional series %s", variable)
	}
	defer rows.Close()

	series := make(map[string]measure.RegionalMeasure)
	for rows.Next() {
		var rm measure.RegionalMeasure
		if err := rows.Scan(&rm.RegionCode, &rm.Value, &rm.CountiesIncluded, &rm.CountiesTotal); err != nil {
			return nil, eris.Wrap(err, "postgres: scan regional measure")
		}
		series[rm.RegionCode] = rm
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate regional series")
	}
	if len(series) == 0 {
		return nil, eris.Errorf("postgres: regional series not found: %s", variable)
	}
	return series, nil
}

func (s *PostgresStore) ListRegionalVariables(ctx context.Context) ([]string, error) {
	return s.listVariables(ctx, `SELECT DISTINCT variable FROM regional_measures ORDER BY variable`)
}

func (s *PostgresStore) LoadAggregationReport(ctx context.Context, variable string) (*measure.Report, error) {
	var reportJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT report FROM aggregation_reports WHERE variable = $1`, variable,
	).Scan(&reportJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: aggregation report not found: %s", variable)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load report %s", variable)
	}

	var report measure.Report
	if err := json.Unmarshal(reportJSON, &report); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal report")
	}
	return &report, nil
}

func (s *PostgresStore) SaveMatchRun(ctx context.Context, artifact *matching.Artifact) (string, error) {
	id := uuid.New().String()
	artifactJSON, err := json.Marshal(artifact)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal artifact")
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO match_runs (id, artifact, created_at) VALUES ($1, $2, $3)`,
		id, artifactJSON, time.Now().UTC(),
	); err != nil {
		return "", eris.Wrap(err, "postgres: insert match run")
	}
	return id, nil
}

func (s *PostgresStore) LatestMatchRun(ctx context.Context) (string, *matching.Artifact, error) {
	var id string
	var artifactJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, artifact FROM match_runs ORDER BY created_at DESC, id DESC LIMIT 1`,
	).Scan(&id, &artifactJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil, eris.New("postgres: no match runs")
	}
	if err != nil {
		return "", nil, eris.Wrap(err, "postgres: get latest match run")
	}

	var art matching.Artifact
	if err := json.Unmarshal(artifactJSON, &art); err != nil {
		return "", nil, eris.Wrap(err, "postgres: unmarshal artifact")
	}
	return id, &art, nil
}

func (s *PostgresStore) listVariables(ctx context.Context, query string) ([]string, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list variables")
	}
	defer rows.Close()

	var vars []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrap(err, "postgres: scan variable")
		}
		vars = append(vars, v)
	}
	return vars, eris.Wrap(rows.Err(), "postgres: iterate variables")
}

// helpers

func floatPtr(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func derefOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
