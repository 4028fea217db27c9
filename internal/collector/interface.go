// Package collector pulls county-level statistics from federal data sources
// and produces tagged measure series ready for regional aggregation.
package collector

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/commonwealth-analytics/thriving-index/internal/fetcher"
	"github.com/commonwealth-analytics/thriving-index/internal/measure"
	"github.com/commonwealth-analytics/thriving-index/internal/region"
)

// Cadence describes how often a source publishes new data.
type Cadence string

const (
	Monthly Cadence = "monthly"
	Annual  Cadence = "annual"
)

// Series is one collected variable: a full county snapshot with its
// aggregation kind. Intensive series carry their own weights when the source
// publishes a natural denominator.
type Series struct {
	Variable string
	Kind     measure.Kind
	Records  []measure.CountyMeasure
}

// Collector defines the interface each data source must implement.
type Collector interface {
	// Name returns the unique identifier for this collector (e.g., "acs").
	Name() string

	// Source returns the upstream system the data comes from.
	Source() string

	// Cadence returns how often the source is updated upstream.
	Cadence() Cadence

	// Collect downloads and parses the source for the given year. tempDir is
	// a working directory for downloaded files.
	Collect(ctx context.Context, f fetcher.Fetcher, year int, tempDir string) ([]Series, error)
}

// footprintStateFIPS lists the state FIPS codes the collectors pull:
// KY, MD, NJ, NY, NC, PA, SC, TN, VA, WV. That is the seven-state study
// footprint plus immediate neighbors, not the footprint itself: candidate
// regions in neighbor states need county measures too.
var footprintStateFIPS = region.FootprintStateFIPS()

// parseSourceFloat converts an upstream numeric string to a float64, mapping
// the sources' various missing-data markers to NaN. Census ACS suppresses
// values with large negative sentinels; BEA uses "(NA)" and "(D)" and groups
// digits with commas.
func parseSourceFloat(s string) float64 {
	s = strings.TrimSpace(s)
	switch s {
	case "", "null", "(NA)", "(D)", "(L)", "N.A.", "-":
		return math.NaN()
	}
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	if v <= -222222222 { // ACS suppression sentinels (-666666666 and kin)
		return math.NaN()
	}
	return v
}

// lastDataYear caps a requested year at the most recent one the annual
// sources can plausibly have published. Federal county tables lag by a year
// or more.
func lastDataYear(requested int, now time.Time) int {
	latest := now.Year() - 1
	if requested > 0 && requested < latest {
		return requested
	}
	return latest
}
