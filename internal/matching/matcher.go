package matching

import (
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrNoTargets is returned when no region in the feature matrix carries the
// home-state prefix.
var ErrNoTargets = eris.New("matching: feature matrix contains no target regions")

// ErrNoCandidates is returned when every region in the feature matrix is a
// target, leaving nothing to match against.
var ErrNoCandidates = eris.New("matching: feature matrix contains no candidate regions")

// PeerMatch is one ranked peer for a target region.
type PeerMatch struct {
	Rank       int     `json:"rank"`
	RegionCode string  `json:"region_code"`
	Distance   float64 `json:"distance"`
}

// TargetPeers is the ordered peer list for one target region.
type TargetPeers struct {
	TargetRegion string      `json:"target_region"`
	Peers        []PeerMatch `json:"peers"`
}

// Result is the output of one matching run.
type Result struct {
	Targets []TargetPeers `json:"targets"` // sorted by target region code

	// SingularCovariance is set when the covariance matrix could not be
	// inverted directly and the Moore-Penrose pseudo-inverse was used.
	// Distances under the pseudo-inverse are still well-defined but the
	// metric is degenerate; reviewers need to know.
	SingularCovariance bool `json:"singular_covariance"`

	Variables []string `json:"variables"`
	Regions   int      `json:"regions"`
}

// Matcher ranks candidate regions by Mahalanobis distance from each target
// region. The covariance matrix is estimated over every region in the
// matrix, targets included, so the metric reflects the full observed
// variability.
type Matcher struct {
	K         int    // peers returned per target
	HomeState string // region-code prefix selecting targets, e.g. "VA"
}

// NewMatcher creates a Matcher. K defaults to 10 when non-positive.
func NewMatcher(k int, homeState string) *Matcher {
	if k <= 0 {
		k = 10
	}
	return &Matcher{K: k, HomeState: homeState}
}

// Match computes the ranked peer lists. Exact by design: at this scale
// (tens of regions, a handful of variables) reproducibility matters more
// than speed, so there is no approximation anywhere and two runs on the
// same matrix are bit-identical.
func (m *Matcher) Match(fm *FeatureMatrix) (*Result, error) {
	r, v := fm.Data.Dims()
	if v == 0 {
		return nil, eris.New("matching: feature matrix has no variables")
	}
	if r < 2 {
		return nil, eris.Errorf("matching: need at least 2 regions, got %d", r)
	}

	sigma := mat.NewSymDense(v, nil)
	stat.CovarianceMatrix(sigma, fm.Data, nil)

	inv, singular, err := invertOrPseudo(sigma)
	if err != nil {
		return nil, err
	}
	if singular {
		zap.L().Warn("matching: covariance matrix singular, using pseudo-inverse",
			zap.Int("variables", v),
			zap.Int("regions", r),
		)
	}

	prefix := m.HomeState + "-"
	var targets, candidates []int
	for i, code := range fm.Regions {
		if strings.HasPrefix(code, prefix) {
			targets = append(targets, i)
		} else {
			candidates = append(candidates, i)
		}
	}
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	result := &Result{
		SingularCovariance: singular,
		Variables:          fm.Variables,
		Regions:            r,
	}

	for _, t := range targets {
		peers := make([]PeerMatch, 0, len(candidates))
		for _, c := range candidates {
			peers = append(peers, PeerMatch{
				RegionCode: fm.Regions[c],
				Distance:   mahalanobis(fm.Data, t, c, inv),
			})
		}
		sort.Slice(peers, func(i, j int) bool {
			if peers[i].Distance != peers[j].Distance {
				return peers[i].Distance < peers[j].Distance
			}
			return peers[i].RegionCode < peers[j].RegionCode
		})
		if len(peers) > m.K {
			peers = peers[:m.K]
		}
		for i := range peers {
			peers[i].Rank = i + 1
		}
		result.Targets = append(result.Targets, TargetPeers{
			TargetRegion: fm.Regions[t],
			Peers:        peers,
		})
	}
	// fm.Regions is sorted, and targets were collected in order, so
	// result.Targets is already sorted by target code.

	return result, nil
}

// mahalanobis computes sqrt(dᵀ Σ⁻¹ d) between rows i and j, clamping tiny
// negative quadratic forms from round-off to zero before the square root.
func mahalanobis(data *mat.Dense, i, j int, inv *mat.Dense) float64 {
	_, v := data.Dims()
	diff := mat.NewVecDense(v, nil)
	for k := 0; k < v; k++ {
		diff.SetVec(k, data.At(i, k)-data.At(j, k))
	}
	q := mat.Inner(diff, inv, diff)
	if q < 0 {
		q = 0
	}
	return math.Sqrt(q)
}

// invertOrPseudo inverts sigma, falling back to the Moore-Penrose
// pseudo-inverse (via SVD) when the matrix is singular or so
// ill-conditioned that a direct inverse is meaningless.
func invertOrPseudo(sigma *mat.SymDense) (*mat.Dense, bool, error) {
	v, _ := sigma.Dims()
	inv := mat.NewDense(v, v, nil)
	if err := inv.Inverse(sigma); err == nil {
		return inv, false, nil
	}

	var svd mat.SVD
	if ok := svd.Factorize(sigma, mat.SVDFull); !ok {
		return nil, false, eris.New("matching: SVD factorization failed")
	}

	values := svd.Values(nil)
	var u, vmat mat.Dense
	svd.UTo(&u)
	svd.VTo(&vmat)

	// Tolerance follows the usual pinv convention: eps scaled by the
	// largest singular value and the matrix dimension.
	tol := float64(v) * 2.220446049250313e-16 * values[0]
	dinv := mat.NewDense(v, v, nil)
	for i, s := range values {
		if s > tol {
			dinv.Set(i, i, 1/s)
		}
	}

	var tmp, pinv mat.Dense
	tmp.Mul(dinv, u.T())
	pinv.Mul(&vmat, &tmp)
	return &pinv, true, nil
}
