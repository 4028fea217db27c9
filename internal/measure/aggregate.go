package measure

import (
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/commonwealth-analytics/thriving-index/internal/region"
)

// ErrNoWeights is returned when intensive aggregation is requested but not a
// single record carries a usable weight. That is a configuration error on
// the caller's side, not a data gap, so it fails before any output.
var ErrNoWeights = eris.New("measure: intensive aggregation requested with no weight data")

// Report carries the coverage statistics for one aggregation run. Dropped
// records are the silent-data-loss signal: a jump in DroppedUnmapped between
// runs means the region index and the collector disagree about the footprint.
type Report struct {
	Records         int `json:"records"`
	DroppedUnmapped int `json:"dropped_unmapped"`
	DroppedMissing  int `json:"dropped_missing"`
	DroppedNoWeight int `json:"dropped_no_weight"`
	RegionsCovered  int `json:"regions_covered"`
	RegionsTotal    int `json:"regions_total"`
}

// Aggregator folds county observations into regional statistics using a
// shared, read-only region index.
type Aggregator struct {
	idx *region.Index
}

// NewAggregator creates an Aggregator over the given index.
func NewAggregator(idx *region.Index) *Aggregator {
	return &Aggregator{idx: idx}
}

// Aggregate folds records into one RegionalMeasure per covered region.
// Records whose FIPS does not resolve are dropped and counted. For intensive
// measures, records without a usable weight are excluded from both numerator
// and denominator; a region whose denominator ends up zero is absent from
// the result. Input order never affects the output.
func (a *Aggregator) Aggregate(records []CountyMeasure, kind Kind) (map[string]RegionalMeasure, *Report, error) {
	if kind != Extensive && kind != Intensive {
		return nil, nil, eris.Errorf("measure: unknown aggregation kind %q", kind)
	}
	if kind == Intensive {
		any := false
		for _, r := range records {
			if r.HasWeight() {
				any = true
				break
			}
		}
		if !any {
			return nil, nil, ErrNoWeights
		}
	}

	type acc struct {
		sum       float64 // extensive sum, or intensive weighted numerator
		weightSum float64
		included  int
	}
	accs := make(map[string]*acc)
	report := &Report{Records: len(records), RegionsTotal: a.idx.NumRegions()}

	for _, r := range records {
		code, ok := a.idx.RegionFor(r.FIPS)
		if !ok {
			report.DroppedUnmapped++
			continue
		}
		if r.Missing() {
			report.DroppedMissing++
			continue
		}
		if kind == Intensive && !r.HasWeight() {
			report.DroppedNoWeight++
			continue
		}

		ac := accs[code]
		if ac == nil {
			ac = &acc{}
			accs[code] = ac
		}
		switch kind {
		case Extensive:
			ac.sum += r.Value
		case Intensive:
			ac.sum += r.Value * r.Weight
			ac.weightSum += r.Weight
		}
		ac.included++
	}

	out := make(map[string]RegionalMeasure, len(accs))
	for code, ac := range accs {
		value := ac.sum
		if kind == Intensive {
			if ac.weightSum == 0 {
				// Unreachable given HasWeight filtering, but a zero
				// denominator must never become a NaN-valued region.
				continue
			}
			value = ac.sum / ac.weightSum
		}
		if math.IsNaN(value) {
			continue
		}
		out[code] = RegionalMeasure{
			RegionCode:       code,
			Value:            value,
			CountiesIncluded: ac.included,
			CountiesTotal:    len(a.idx.FIPSInRegion(code)),
		}
	}
	report.RegionsCovered = len(out)

	if report.DroppedUnmapped > 0 {
		zap.L().Warn("measure: records dropped for unmapped fips",
			zap.Int("dropped", report.DroppedUnmapped),
			zap.Int("records", report.Records),
		)
	}

	return out, report, nil
}
