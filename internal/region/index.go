package region

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Membership is one region definition from the per-state membership tables:
// a region code plus the locality names belonging to it. Names are matched
// against the locality tables after normalization.
type Membership struct {
	Code    string   `yaml:"code"`
	Name    string   `yaml:"name"`
	State   string   `yaml:"state"`
	Members []string `yaml:"members"`
}

// BuildReport records what happened while joining locality tables against
// region-membership tables. Unmatched localities are a silent-data-loss
// risk: any measure collected for them would be dropped at aggregation time.
type BuildReport struct {
	Localities          int        `json:"localities"`
	Regions             int        `json:"regions"`
	UnmatchedLocalities []Locality `json:"unmatched_localities,omitempty"`
	UnmatchedMembers    []string   `json:"unmatched_members,omitempty"`
}

// Index is the immutable FIPS → region lookup shared by the whole pipeline.
// Built once at startup; no write API.
type Index struct {
	fipsToRegion map[string]string
	regions      map[string]*Region
	localities   map[string]*Locality
	codes        []string
}

// Build joins localities against region memberships by normalized name
// within each state. Every member name must resolve to exactly one locality;
// a name claimed by two regions is a construction error. Localities that no
// region claims are logged and reported, not dropped silently.
func Build(localities []Locality, memberships []Membership) (*Index, *BuildReport, error) {
	// Normalized (state, name) → locality. Keys that ever collided are
	// vacated and tracked so later localities with the same name go
	// straight to type-qualified keys instead of re-occupying the plain key.
	byName := make(map[string]*Locality, len(localities))
	collided := make(map[string]bool)
	locByFIPS := make(map[string]*Locality, len(localities))
	for i := range localities {
		loc := &localities[i]
		if len(loc.FIPS) != 5 {
			return nil, nil, eris.Errorf("region: locality %q has malformed fips %q", loc.Name, loc.FIPS)
		}
		key := loc.State + "/" + NormalizeName(loc.Name)
		switch prev, dup := byName[key]; {
		case collided[key]:
			if other, taken := byName[key+"|"+string(loc.Type)]; taken {
				return nil, nil, eris.Errorf("region: localities %s and %s are indistinguishable (%s, type %s)",
					other.FIPS, loc.FIPS, key, loc.Type)
			}
			byName[key+"|"+string(loc.Type)] = loc
		case dup:
			// Two localities normalizing to the same key (e.g. Fairfax
			// County vs Fairfax city) must be distinguished by their
			// type suffix in the membership table. Disambiguate by
			// keeping both under type-qualified keys.
			if prev.Type == loc.Type {
				return nil, nil, eris.Errorf("region: localities %s and %s are indistinguishable (%s, type %s)",
					prev.FIPS, loc.FIPS, key, loc.Type)
			}
			delete(byName, key)
			collided[key] = true
			byName[key+"|"+string(prev.Type)] = prev
			byName[key+"|"+string(loc.Type)] = loc
		default:
			byName[key] = loc
		}
		locByFIPS[loc.FIPS] = loc
	}

	idx := &Index{
		fipsToRegion: make(map[string]string),
		regions:      make(map[string]*Region, len(memberships)),
		localities:   locByFIPS,
	}
	report := &BuildReport{Localities: len(localities), Regions: len(memberships)}

	for _, m := range memberships {
		if _, dup := idx.regions[m.Code]; dup {
			return nil, nil, eris.Errorf("region: duplicate region code %q", m.Code)
		}
		r := &Region{Code: m.Code, Name: m.Name, State: m.State}
		for _, member := range m.Members {
			loc := resolveMember(byName, m.State, member)
			if loc == nil {
				report.UnmatchedMembers = append(report.UnmatchedMembers, m.State+"/"+member)
				continue
			}
			if prev, claimed := idx.fipsToRegion[loc.FIPS]; claimed {
				return nil, nil, eris.Errorf("region: locality %s (%s) claimed by both %s and %s",
					loc.FIPS, loc.Name, prev, m.Code)
			}
			idx.fipsToRegion[loc.FIPS] = m.Code
			r.MemberFIPS = append(r.MemberFIPS, loc.FIPS)
		}
		sort.Strings(r.MemberFIPS)
		idx.regions[m.Code] = r
		idx.codes = append(idx.codes, m.Code)
	}
	sort.Strings(idx.codes)

	for _, loc := range localities {
		if _, ok := idx.fipsToRegion[loc.FIPS]; !ok {
			report.UnmatchedLocalities = append(report.UnmatchedLocalities, loc)
			zap.L().Warn("region: locality not assigned to any region",
				zap.String("fips", loc.FIPS),
				zap.String("name", loc.Name),
				zap.String("state", loc.State),
			)
		}
	}
	sort.Slice(report.UnmatchedLocalities, func(i, j int) bool {
		return report.UnmatchedLocalities[i].FIPS < report.UnmatchedLocalities[j].FIPS
	})
	sort.Strings(report.UnmatchedMembers)

	return idx, report, nil
}

// resolveMember looks up a membership name, trying the plain normalized key
// first and then the type-qualified keys used for name collisions
// ("fairfax city" resolves via the city-qualified entry).
func resolveMember(byName map[string]*Locality, state, name string) *Locality {
	norm := NormalizeName(name)
	if loc, ok := byName[state+"/"+norm]; ok {
		return loc
	}
	for _, t := range []LocalityType{TypeCity, TypeCounty, TypeDistrict, TypeUnknown} {
		if loc, ok := byName[state+"/"+norm+"|"+string(t)]; ok && memberNameMatchesType(name, t) {
			return loc
		}
	}
	return nil
}

// memberNameMatchesType decides which of two same-named localities a
// membership entry refers to, based on the suffix the entry carried before
// normalization. An entry without a recognizable suffix matches a county.
func memberNameMatchesType(raw string, t LocalityType) bool {
	full := normalizeBase(raw)
	switch t {
	case TypeCity:
		return strings.HasSuffix(full, " city") || strings.HasSuffix(full, " independent city")
	case TypeCounty, TypeDistrict, TypeUnknown:
		return !strings.HasSuffix(full, " city") && !strings.HasSuffix(full, " independent city")
	}
	return false
}

// RegionFor returns the owning region code for a FIPS code. ok is false for
// localities outside the footprint or never assigned to a region; absence is
// a normal outcome, not an error.
func (idx *Index) RegionFor(fips string) (string, bool) {
	code, ok := idx.fipsToRegion[fips]
	return code, ok
}

// FIPSInRegion returns the sorted member FIPS list for a region code, or an
// empty slice if the code is unknown.
func (idx *Index) FIPSInRegion(code string) []string {
	r, ok := idx.regions[code]
	if !ok {
		return []string{}
	}
	out := make([]string, len(r.MemberFIPS))
	copy(out, r.MemberFIPS)
	return out
}

// Region returns the region definition for a code.
func (idx *Index) Region(code string) (*Region, bool) {
	r, ok := idx.regions[code]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

// Locality returns the locality record for a FIPS code.
func (idx *Index) Locality(fips string) (*Locality, bool) {
	loc, ok := idx.localities[fips]
	if !ok {
		return nil, false
	}
	cp := *loc
	return &cp, true
}

// Codes returns all region codes in lexical order.
func (idx *Index) Codes() []string {
	out := make([]string, len(idx.codes))
	copy(out, idx.codes)
	return out
}

// NumRegions returns the number of defined regions.
func (idx *Index) NumRegions() int { return len(idx.regions) }
