// Package matching builds the per-region feature matrix from aggregated
// measure series and ranks peer regions by Mahalanobis distance.
package matching

import (
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// ErrNoCompleteRegions is returned when no region has data for every
// matching variable. An empty matrix must never flow downstream as a valid
// result.
var ErrNoCompleteRegions = eris.New("matching: no regions have complete data for all variables")

// FeatureMatrix is the R×V matrix of matching variables, one row per region
// with complete data, rows and columns in lexical order.
type FeatureMatrix struct {
	Regions   []string
	Variables []string
	Data      *mat.Dense

	// Degenerate lists included variables with zero variance across the
	// selected regions. They stay in the matrix: dropping a variable is an
	// operator decision, not something this layer does silently. A
	// degenerate column forces the pseudo-inverse path in the matcher.
	Degenerate []string

	// Excluded lists variables whose series were empty and therefore could
	// not be included at all.
	Excluded []string
}

// BuildMatrix assembles the feature matrix from independently aggregated
// series. The region set is the strict intersection of regions present in
// every non-empty series: partial data is treated as no data.
func BuildMatrix(series map[string]map[string]float64) (*FeatureMatrix, error) {
	if len(series) == 0 {
		return nil, eris.New("matching: no variable series supplied")
	}

	fm := &FeatureMatrix{}
	for name, s := range series {
		if len(s) == 0 {
			fm.Excluded = append(fm.Excluded, name)
			continue
		}
		fm.Variables = append(fm.Variables, name)
	}
	sort.Strings(fm.Variables)
	sort.Strings(fm.Excluded)
	if len(fm.Variables) == 0 {
		return nil, eris.New("matching: every variable series is empty")
	}

	// Intersect region coverage across all included variables.
	counts := make(map[string]int)
	for _, name := range fm.Variables {
		for code := range series[name] {
			counts[code]++
		}
	}
	for code, n := range counts {
		if n == len(fm.Variables) {
			fm.Regions = append(fm.Regions, code)
		}
	}
	sort.Strings(fm.Regions)
	if len(fm.Regions) == 0 {
		return nil, ErrNoCompleteRegions
	}

	fm.Data = mat.NewDense(len(fm.Regions), len(fm.Variables), nil)
	for j, name := range fm.Variables {
		s := series[name]
		first := s[fm.Regions[0]]
		constant := true
		for i, code := range fm.Regions {
			v := s[code]
			fm.Data.Set(i, j, v)
			if v != first {
				constant = false
			}
		}
		if constant {
			fm.Degenerate = append(fm.Degenerate, name)
		}
	}

	if len(fm.Degenerate) > 0 {
		zap.L().Warn("matching: degenerate variables with zero variance",
			zap.Strings("variables", fm.Degenerate),
		)
	}

	return fm, nil
}
