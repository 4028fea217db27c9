package matching

import (
	"encoding/json"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/commonwealth-analytics/thriving-index/internal/region"
)

// RegionUniverse is the full count of analysis regions across the seven-state
// footprint. Coverage in the artifact metadata is reported against this so a
// partial-data run is never mistaken for a complete one.
const RegionUniverse = 54

// PeerEntry is one ranked peer in the terminal artifact.
type PeerEntry struct {
	Rank       int     `json:"rank"`
	RegionCode string  `json:"region_code"`
	RegionName string  `json:"region_name"`
	Distance   float64 `json:"distance"`
}

// TargetEntry is the artifact record for one target region.
type TargetEntry struct {
	RegionName string      `json:"region_name"`
	Peers      []PeerEntry `json:"peers"`
}

// Metadata records how the matching run was configured and how complete its
// inputs were.
type Metadata struct {
	GeneratedAt         time.Time `json:"generated_at"`
	Variables           []string  `json:"variables"`
	NumVariables        int       `json:"num_variables"`
	DegenerateVariables []string  `json:"degenerate_variables,omitempty"`
	ExcludedVariables   []string  `json:"excluded_variables,omitempty"`
	SingularCovariance  bool      `json:"singular_covariance"`
	TargetsProcessed    int       `json:"targets_processed"`
	RegionsInMatrix     int       `json:"regions_in_matrix"`
	RegionsExpected     int       `json:"regions_expected"`
	K                   int       `json:"k"`
}

// Artifact is the terminal output of the pipeline.
type Artifact struct {
	Targets  map[string]TargetEntry `json:"targets"`
	Metadata Metadata               `json:"metadata"`
}

// BuildArtifact joins a matching result against the region index to attach
// display names and coverage metadata.
func BuildArtifact(result *Result, fm *FeatureMatrix, idx *region.Index, k int) *Artifact {
	art := &Artifact{
		Targets: make(map[string]TargetEntry, len(result.Targets)),
		Metadata: Metadata{
			GeneratedAt:         time.Now().UTC(),
			Variables:           result.Variables,
			NumVariables:        len(result.Variables),
			DegenerateVariables: fm.Degenerate,
			ExcludedVariables:   fm.Excluded,
			SingularCovariance:  result.SingularCovariance,
			TargetsProcessed:    len(result.Targets),
			RegionsInMatrix:     result.Regions,
			RegionsExpected:     RegionUniverse,
			K:                   k,
		},
	}

	for _, tp := range result.Targets {
		entry := TargetEntry{RegionName: regionName(idx, tp.TargetRegion)}
		for _, p := range tp.Peers {
			entry.Peers = append(entry.Peers, PeerEntry{
				Rank:       p.Rank,
				RegionCode: p.RegionCode,
				RegionName: regionName(idx, p.RegionCode),
				Distance:   p.Distance,
			})
		}
		art.Targets[tp.TargetRegion] = entry
	}

	return art
}

// WriteJSON writes the artifact as indented JSON.
func (a *Artifact) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(a), "matching: encode artifact")
}

// LogCoverage emits the per-run coverage summary. Partial-data runs are
// common upstream; the summary keeps them visible.
func (a *Artifact) LogCoverage() {
	zap.L().Info("matching: run coverage",
		zap.Int("regions_in_matrix", a.Metadata.RegionsInMatrix),
		zap.Int("regions_expected", a.Metadata.RegionsExpected),
		zap.Int("variables", a.Metadata.NumVariables),
		zap.Strings("degenerate_variables", a.Metadata.DegenerateVariables),
		zap.Strings("excluded_variables", a.Metadata.ExcludedVariables),
		zap.Bool("singular_covariance", a.Metadata.SingularCovariance),
		zap.Int("targets", a.Metadata.TargetsProcessed),
	)
}

func regionName(idx *region.Index, code string) string {
	if idx == nil {
		return ""
	}
	if r, ok := idx.Region(code); ok {
		return r.Name
	}
	return ""
}
