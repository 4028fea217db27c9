// Package measure defines county-level observations and the single
// aggregation algorithm that folds them into regional statistics.
package measure

import "math"

// Kind selects the aggregation semantics for a measure.
type Kind string

const (
	// Extensive measures are additive quantities (population, jobs):
	// regional value = sum of county values.
	Extensive Kind = "extensive"

	// Intensive measures are rates and ratios (income, percentages):
	// regional value = weighted average of county values, weighted by
	// end-period population unless the measure documents otherwise.
	Intensive Kind = "intensive"
)

// ParseKind converts a config string into a Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case string(Extensive):
		return Extensive, true
	case string(Intensive):
		return Intensive, true
	}
	return "", false
}

// CountyMeasure is one observed value for one locality. Value may be NaN for
// missing or suppressed data. Weight is NaN when no weight was supplied.
type CountyMeasure struct {
	FIPS   string  `json:"fips"`
	Value  float64 `json:"value"`
	Weight float64 `json:"weight"`
}

// NewCountyMeasure builds an unweighted observation.
func NewCountyMeasure(fips string, value float64) CountyMeasure {
	return CountyMeasure{FIPS: fips, Value: value, Weight: math.NaN()}
}

// Missing reports whether the observation carries no usable value.
func (m CountyMeasure) Missing() bool { return math.IsNaN(m.Value) }

// HasWeight reports whether the observation carries a usable weight:
// present, finite, and strictly positive.
func (m CountyMeasure) HasWeight() bool {
	return !math.IsNaN(m.Weight) && !math.IsInf(m.Weight, 0) && m.Weight > 0
}

// RegionalMeasure is the aggregation result for one region. A region with no
// contributing counties has no RegionalMeasure at all; absence and zero are
// different facts.
type RegionalMeasure struct {
	RegionCode       string  `json:"region_code"`
	Value            float64 `json:"value"`
	CountiesIncluded int     `json:"counties_included"`
	CountiesTotal    int     `json:"counties_total"`
}
