// Package store persists collected county measures, aggregated regional
// series, and peer-match run artifacts. Two backends: SQLite for local
// single-analyst runs (the default) and Postgres for shared deployments.
package store

import (
	"context"

	"github.com/commonwealth-analytics/thriving-index/internal/matching"
	"github.com/commonwealth-analytics/thriving-index/internal/measure"
)

// Store is the persistence interface for the pipeline.
type Store interface {
	// County-level raw series, one per measure variable. Saving replaces
	// the variable's previous rows wholesale: collectors always produce
	// full snapshots, never deltas.
	SaveCountySeries(ctx context.Context, variable string, kind measure.Kind, records []measure.CountyMeasure) error
	LoadCountySeries(ctx context.Context, variable string) (measure.Kind, []measure.CountyMeasure, error)
	ListCountyVariables(ctx context.Context) ([]string, error)

	// Regional series plus the coverage report from the aggregation run.
	SaveRegionalSeries(ctx context.Context, variable string, series map[string]measure.RegionalMeasure, report *measure.Report) error
	LoadRegionalSeries(ctx context.Context, variable string) (map[string]measure.RegionalMeasure, error)
	ListRegionalVariables(ctx context.Context) ([]string, error)
	LoadAggregationReport(ctx context.Context, variable string) (*measure.Report, error)

	// Peer-match run artifacts.
	SaveMatchRun(ctx context.Context, artifact *matching.Artifact) (string, error)
	LatestMatchRun(ctx context.Context) (string, *matching.Artifact, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
