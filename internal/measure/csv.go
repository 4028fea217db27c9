package measure

import (
	"encoding/csv"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ReadCountyCSV parses a county-measure file with columns fips,value[,weight].
// An empty or non-numeric value cell becomes NaN (missing/suppressed), never
// zero: suppressed cells must not leak into regional sums. Weight follows
// the same rule.
func ReadCountyCSV(r io.Reader) ([]CountyMeasure, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrap(err, "measure: read header")
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := col["fips"]; !ok {
		return nil, eris.New("measure: missing fips column")
	}
	if _, ok := col["value"]; !ok {
		return nil, eris.New("measure: missing value column")
	}

	var out []CountyMeasure
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "measure: read row")
		}
		m := CountyMeasure{
			FIPS:   strings.TrimSpace(record[col["fips"]]),
			Value:  parseFloatOrNaN(record[col["value"]]),
			Weight: math.NaN(),
		}
		if i, ok := col["weight"]; ok && i < len(record) {
			m.Weight = parseFloatOrNaN(record[i])
		}
		out = append(out, m)
	}
	return out, nil
}

// WriteRegionalCSV writes a regional series with deterministic row order.
func WriteRegionalCSV(w io.Writer, series map[string]RegionalMeasure) error {
	codes := make([]string, 0, len(series))
	for code := range series {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"region_code", "value", "counties_included", "counties_total"}); err != nil {
		return eris.Wrap(err, "measure: write header")
	}
	for _, code := range codes {
		rm := series[code]
		row := []string{
			rm.RegionCode,
			strconv.FormatFloat(rm.Value, 'g', -1, 64),
			strconv.Itoa(rm.CountiesIncluded),
			strconv.Itoa(rm.CountiesTotal),
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrapf(err, "measure: write row %s", code)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "measure: flush")
}

func parseFloatOrNaN(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" || s == "NA" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
