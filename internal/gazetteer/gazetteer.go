// Package gazetteer reads the Census TIGER/Line county shapefile and turns
// it into county land-area measures for the study footprint.
package gazetteer

import (
	"math"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/commonwealth-analytics/thriving-index/internal/measure"
)

// County is one record from the TIGER county layer. Land and water areas are
// the published ALAND/AWATER figures in square meters.
type County struct {
	FIPS      string
	Name      string
	LandArea  float64
	WaterArea float64
}

// ReadCounties parses a TIGER county shapefile, keeping only counties whose
// state FIPS prefix appears in states (all counties when states is empty).
// Records with degenerate geometry are kept but logged; the published area
// attributes are still usable.
func ReadCounties(shpPath string, states []string) ([]County, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "gazetteer: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToUpper(name)] = i
	}
	for _, required := range []string{"GEOID", "NAME", "ALAND", "AWATER"} {
		if _, ok := fieldIdx[required]; !ok {
			return nil, eris.Errorf("gazetteer: shapefile missing field %s", required)
		}
	}

	keep := make(map[string]bool, len(states))
	for _, s := range states {
		keep[s] = true
	}

	var counties []County
	var degenerate int

	for reader.Next() {
		_, shape := reader.Shape()

		attr := func(name string) string {
			return strings.TrimSpace(strings.TrimRight(reader.Attribute(fieldIdx[name]), "\x00"))
		}

		fips := attr("GEOID")
		if len(fips) != 5 {
			continue
		}
		if len(keep) > 0 && !keep[fips[:2]] {
			continue
		}

		c := County{
			FIPS:      fips,
			Name:      attr("NAME"),
			LandArea:  parseArea(attr("ALAND")),
			WaterArea: parseArea(attr("AWATER")),
		}

		// Shapefile outer rings are wound clockwise, so the signed area
		// can be negative for valid geometry.
		if mp := toMultiPolygon(shape); mp == nil || math.Abs(mp.Area()) == 0 {
			degenerate++
		}
		counties = append(counties, c)
	}

	if degenerate > 0 {
		zap.L().Warn("gazetteer: counties with degenerate geometry",
			zap.Int("count", degenerate),
			zap.String("shapefile", shpPath),
		)
	}
	if len(counties) == 0 {
		return nil, eris.Errorf("gazetteer: no matching counties in %s", shpPath)
	}
	return counties, nil
}

// LandAreaSeries converts counties to a land-area measure series in square
// kilometers.
func LandAreaSeries(counties []County) []measure.CountyMeasure {
	records := make([]measure.CountyMeasure, 0, len(counties))
	for _, c := range counties {
		records = append(records, measure.NewCountyMeasure(c.FIPS, c.LandArea/1e6))
	}
	return records
}

func parseArea(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// toMultiPolygon converts a shapefile polygon to a geom.MultiPolygon, one
// polygon per part. Returns nil for non-polygon or empty shapes.
func toMultiPolygon(shape shp.Shape) *geom.MultiPolygon {
	p, ok := shape.(*shp.Polygon)
	if !ok || p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		flat := make([]float64, 0, 2*(end-start))
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		ring := geom.NewLinearRingFlat(geom.XY, flat)
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			continue
		}
		if err := mp.Push(poly); err != nil {
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
