package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/commonwealth-analytics/thriving-index/internal/matching"
	"github.com/commonwealth-analytics/thriving-index/internal/measure"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// NULL value/weight columns carry the "missing" and "unweighted" states;
// NaN never touches the database.
const sqliteMigration = `
CREATE TABLE IF NOT EXISTS county_measures (
	variable     TEXT NOT NULL,
	kind         TEXT NOT NULL,
	fips         TEXT NOT NULL,
	value        REAL,
	weight       REAL,
	collected_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (variable, fips)
);

CREATE TABLE IF NOT EXISTS regional_measures (
	variable          TEXT NOT NULL,
	region_code       TEXT NOT NULL,
	value             REAL NOT NULL,
	counties_included INTEGER NOT NULL,
	counties_total    INTEGER NOT NULL,
	aggregated_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (variable, region_code)
);

CREATE TABLE IF NOT EXISTS aggregation_reports (
	variable      TEXT PRIMARY KEY,
	report        TEXT NOT NULL,
	aggregated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS match_runs (
	id         TEXT PRIMARY KEY,
	artifact   TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_county_measures_variable ON county_measures(variable);
CREATE INDEX IF NOT EXISTS idx_regional_measures_variable ON regional_measures(variable);
CREATE INDEX IF NOT EXISTS idx_match_runs_created_at ON match_runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveCountySeries(ctx context.Context, variable string, kind measure.Kind, records []measure.CountyMeasure) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM county_measures WHERE variable = ?`, variable,
	); err != nil {
		return eris.Wrapf(err, "sqlite: clear county series %s", variable)
	}

	now := time.Now().UTC()
	for _, rec := range records {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO county_measures (variable, kind, fips, value, weight, collected_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			variable, string(kind), rec.FIPS, nullFloat(rec.Value), nullFloat(rec.Weight), now,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert county measure %s/%s", variable, rec.FIPS)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit county series")
}

func (s *SQLiteStore) LoadCountySeries(ctx context.Context, variable string) (measure.Kind, []measure.CountyMeasure, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, fips, value, weight FROM county_measures WHERE variable = ? ORDER BY fips`,
		variable,
	)
	if err != nil {
		return "", nil, eris.Wrapf(err, "sqlite: load county series %s", variable)
	}
	defer rows.Close()

	var kind measure.Kind
	var records []measure.CountyMeasure
	for rows.Next() {
		var kindStr string
		var rec measure.CountyMeasure
		var value, weight sql.NullFloat64
		if err := rows.Scan(&kindStr, &rec.FIPS, &value, &weight); err != nil {
			return "", nil, eris.Wrap(err, "sqlite: scan county measure")
		}
		kind = measure.Kind(kindStr)
		rec.Value = floatOrNaN(value)
		rec.Weight = floatOrNaN(weight)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return "", nil, eris.Wrap(err, "sqlite: iterate county series")
	}
	if len(records) == 0 {
		return "", nil, eris.Errorf("sqlite: county series not found: %s", variable)
	}
	return kind, records, nil
}

func (s *SQLiteStore) ListCountyVariables(ctx context.Context) ([]string, error) {
	return s.listVariables(ctx, `SELECT DISTINCT variable FROM county_measures ORDER BY variable`)
}

func (s *SQLiteStore) SaveRegionalSeries(ctx context.Context, variable string, series map[string]measure.RegionalMeasure, report *measure.Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM regional_measures WHERE variable = ?`, variable,
	); err != nil {
		return eris.Wrapf(err, "sqlite: clear regional series %s", variable)
	}

	now := time.Now().UTC()
	for _, rm := range series {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO regional_measures (variable, region_code, value, counties_included, counties_total, aggregated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			variable, rm.RegionCode, rm.Value, rm.CountiesIncluded, rm.CountiesTotal, now,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert regional measure %s/%s", variable, rm.RegionCode)
		}
	}

	if report != nil {
		reportJSON, err := json.Marshal(report)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal report")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO aggregation_reports (variable, report, aggregated_at) VALUES (?, ?, ?)
			 ON CONFLICT (variable) DO UPDATE SET report = excluded.report, aggregated_at = excluded.aggregated_at`,
			variable, string(reportJSON), now,
		); err != nil {
			return eris.Wrapf(err, "sqlite: upsert report %s", variable)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit regional series")
}

func (s *SQLiteStore) LoadRegionalSeries(ctx context.Context, variable string) (map[string]measure.RegionalMeasure, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT region_code, value, counties_included, counties_total FROM regional_measures WHERE variable = ?`,
		variable,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load regional series %s", variable)
	}
	defer rows.Close()

	series := make(map[string]measure.RegionalMeasure)
	for rows.Next() {
		var rm measure.RegionalMeasure
		if err := rows.Scan(&rm.RegionCode, &rm.Value, &rm.CountiesIncluded, &rm.CountiesTotal); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan regional measure")
		}
		series[rm.RegionCode] = rm
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate regional series")
	}
	if len(series) == 0 {
		return nil, eris.Errorf("sqlite: regional series not found: %s", variable)
	}
	return series, nil
}

func (s *SQLiteStore) ListRegionalVariables(ctx context.Context) ([]string, error) {
	return s.listVariables(ctx, `SELECT DISTINCT variable FROM regional_measures ORDER BY variable`)
}

func (s *SQLiteStore) LoadAggregationReport(ctx context.Context, variable string) (*measure.Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT report FROM aggregation_reports WHERE variable = ?`, variable,
	)

	var reportJSON string
	err := row.Scan(&reportJSON)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("sqlite: aggregation report not found: %s", variable)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load report %s", variable)
	}

	var report measure.Report
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal report")
	}
	return &report, nil
}

func (s *SQLiteStore) SaveMatchRun(ctx context.Context, artifact *matching.Artifact) (string, error) {
	id := uuid.New().String()
	artifactJSON, err := json.Marshal(artifact)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal artifact")
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO match_runs (id, artifact, created_at) VALUES (?, ?, ?)`,
		id, string(artifactJSON), time.Now().UTC(),
	); err != nil {
		return "", eris.Wrap(err, "sqlite: insert match run")
	}
	return id, nil
}

func (s *SQLiteStore) LatestMatchRun(ctx context.Context) (string, *matching.Artifact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, artifact FROM match_runs ORDER BY created_at DESC, id DESC LIMIT 1`,
	)

	var id, artifactJSON string
	err := row.Scan(&id, &artifactJSON)
	if err == sql.ErrNoRows {
		return "", nil, eris.New("sqlite: no match runs")
	}
	if err != nil {
		return "", nil, eris.Wrap(err, "sqlite: get latest match run")
	}

	var art matching.Artifact
	if err := json.Unmarshal([]byte(artifactJSON), &art); err != nil {
		return "", nil, eris.Wrap(err, "sqlite: unmarshal artifact")
	}
	return id, &art, nil
}

func (s *SQLiteStore) listVariables(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list variables")
	}
	defer rows.Close()

	var vars []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan variable")
		}
		vars = append(vars, v)
	}
	return vars, eris.Wrap(rows.Err(), "sqlite: iterate variables")
}

// helpers

func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
