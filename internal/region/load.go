package region

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// membershipFile is the on-disk shape of a per-state region table.
type membershipFile struct {
	State   string       `yaml:"state"`
	Regions []Membership `yaml:"regions"`
}

// LoadMemberships reads every *.yaml file under dir, one per state, each
// listing that state's analysis regions and their member locality names.
func LoadMemberships(dir string) ([]Membership, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, eris.Wrap(err, "region: glob membership tables")
	}
	if len(paths) == 0 {
		return nil, eris.Errorf("region: no membership tables found in %s", dir)
	}
	sort.Strings(paths)

	var all []Membership
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "region: read %s", path)
		}
		var f membershipFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, eris.Wrapf(err, "region: parse %s", path)
		}
		if f.State == "" {
			return nil, eris.Errorf("region: %s missing state", path)
		}
		for _, m := range f.Regions {
			if m.Code == "" || len(m.Members) == 0 {
				return nil, eris.Errorf("region: %s has region with empty code or members", path)
			}
			m.State = f.State
			all = append(all, m)
		}
	}
	return all, nil
}

// LoadLocalities reads every *.csv file under dir, one per state, with
// columns fips,name,type. Rows with malformed FIPS are rejected, not
// skipped: the locality tables are reference data and must be clean.
func LoadLocalities(dir string) ([]Locality, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, eris.Wrap(err, "region: glob locality tables")
	}
	if len(paths) == 0 {
		return nil, eris.Errorf("region: no locality tables found in %s", dir)
	}
	sort.Strings(paths)

	var all []Locality
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "region: open %s", path)
		}
		locs, err := parseLocalityCSV(f)
		f.Close()
		if err != nil {
			return nil, eris.Wrapf(err, "region: parse %s", path)
		}
		all = append(all, locs...)
	}
	return all, nil
}

func parseLocalityCSV(r io.Reader) ([]Locality, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(err, "read header")
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"fips", "name"} {
		if _, ok := col[required]; !ok {
			return nil, eris.Errorf("missing column %q", required)
		}
	}

	var locs []Locality
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "read row")
		}
		fips := strings.TrimSpace(record[col["fips"]])
		if len(fips) != 5 {
			return nil, eris.Errorf("malformed fips %q", fips)
		}
		loc := Locality{
			FIPS:  fips,
			Name:  strings.TrimSpace(record[col["name"]]),
			State: stateForFIPS(fips),
			Type:  TypeUnknown,
		}
		if i, ok := col["type"]; ok && i < len(record) {
			loc.Type = ParseLocalityType(strings.TrimSpace(record[i]))
		}
		if i, ok := col["state"]; ok && i < len(record) && record[i] != "" {
			loc.State = strings.ToUpper(strings.TrimSpace(record[i]))
		}
		locs = append(locs, loc)
	}
	return locs, nil
}

// stateFIPSToPostal covers the seven-state study footprint plus its
// immediate neighbors; anything else keeps the numeric prefix.
var stateFIPSToPostal = map[string]string{
	"21": "KY",
	"24": "MD",
	"34": "NJ",
	"36": "NY",
	"37": "NC",
	"42": "PA",
	"45": "SC",
	"47": "TN",
	"51": "VA",
	"54": "WV",
}

func stateForFIPS(fips string) string {
	if postal, ok := stateFIPSToPostal[fips[:2]]; ok {
		return postal
	}
	return fips[:2]
}

// FootprintStateFIPS returns the state FIPS prefixes of the study footprint
// in ascending order.
func FootprintStateFIPS() []string {
	codes := make([]string, 0, len(stateFIPSToPostal))
	for code := range stateFIPSToPostal {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
