// Package region defines the seven-state analysis geography: localities
// (counties and independent cities), multi-county analysis regions, and the
// immutable index joining the two by FIPS code.
package region

// LocalityType classifies a locality record.
type LocalityType string

const (
	TypeCounty   LocalityType = "county"
	TypeCity     LocalityType = "city"
	TypeDistrict LocalityType = "district"

	// TypeUnknown marks a locality whose classification could not be
	// determined from the source tables. Kept distinct from the other
	// types so callers never mistake "unclassified" for a confirmed type.
	TypeUnknown LocalityType = "unknown"
)

// ParseLocalityType converts a source-table type string into a LocalityType.
// Unrecognized or empty strings map to TypeUnknown.
func ParseLocalityType(s string) LocalityType {
	switch s {
	case "county":
		return TypeCounty
	case "city":
		return TypeCity
	case "district":
		return TypeDistrict
	default:
		return TypeUnknown
	}
}

// Locality is a county or independent city. Reference data, never mutated.
type Locality struct {
	FIPS  string       `json:"fips"` // 5 chars, first 2 = state code
	Name  string       `json:"name"`
	State string       `json:"state"` // 2-letter postal code
	Type  LocalityType `json:"type"`
}

// Region is a named multi-county grouping used as the unit of analysis.
type Region struct {
	Code       string   `json:"code"` // e.g. "VA-8"
	Name       string   `json:"name"`
	State      string   `json:"state"`
	MemberFIPS []string `json:"member_fips"`
}
