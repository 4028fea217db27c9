package region

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Suffixes stripped from locality names before matching against the
// region-membership tables. Order matters: longer suffixes first.
var localitySuffixes = []string{
	"independent city",
	"census area",
	"county",
	"city",
	"parish",
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName reduces a locality name to a canonical matching key:
// lowercase, diacritics and punctuation removed, type suffixes stripped,
// whitespace collapsed. "Doña Ana County" and "dona ana" normalize equal.
func NormalizeName(name string) string {
	s := normalizeBase(name)
	for _, suffix := range localitySuffixes {
		if trimmed, ok := strings.CutSuffix(s, " "+suffix); ok {
			s = trimmed
			break
		}
	}
	return s
}

// normalizeBase applies everything NormalizeName does except the type-suffix
// strip, so callers can still see whether a name said "city" or "county".
func normalizeBase(name string) string {
	s, _, err := transform.String(stripMarks, name)
	if err != nil {
		s = name
	}
	s = strings.ToLower(s)

	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
		// punctuation dropped
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
