package boundary

import (
	"math"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"
)

// ParseSRID extracts the numeric code from "EPSG:4269" style identifiers.
// Anything else yields 0 (unknown).
func ParseSRID(srs string) int {
	code, ok := strings.CutPrefix(strings.ToUpper(strings.TrimSpace(srs)), "EPSG:")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(code)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// ToGeom converts a go-shp shape to a go-geom geometry carrying srid.
// Unsupported or empty shapes return nil.
func ToGeom(shape shp.Shape, srid int) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(srid)
	case *shp.Polygon:
		if mp := polygonToMultiPolygon(s); mp != nil {
			return mp.SetSRID(srid)
		}
	}
	return nil
}

// EncodeWKB converts a shape to little-endian EWKB. Returns nil, nil for
// unsupported or empty shapes.
func EncodeWKB(shape shp.Shape, srid int) ([]byte, error) {
	g := ToGeom(shape, srid)
	if g == nil {
		return nil, nil
	}
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "boundary: encode WKB")
	}
	return data, nil
}

// Area returns the planar area of a polygon shape in source units.
func Area(shape shp.Shape) float64 {
	p, ok := shape.(*shp.Polygon)
	if !ok {
		return 0
	}
	mp := polygonToMultiPolygon(p)
	if mp == nil {
		return 0
	}
	var area float64
	for i := 0; i < mp.NumPolygons(); i++ {
		poly := mp.Polygon(i)
		area += math.Abs(poly.LinearRing(0).Area())
		for j := 1; j < poly.NumLinearRings(); j++ {
			area -= math.Abs(poly.LinearRing(j).Area())
		}
	}
	return area
}

// polygonToMultiPolygon groups shapefile rings into polygons. Outer rings
// are clockwise; each counter-clockwise ring is a hole of the outer ring
// before it. The result uses the opposite winding, as GeoJSON expects.
func polygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)
	var current *geom.Polygon
	flush := func() {
		if current == nil {
			return
		}
		if err := mp.Push(current); err != nil {
			zap.L().Debug("boundary: skipping malformed polygon", zap.Error(err))
		}
		current = nil
	}

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if start < 0 || end > int32(len(p.Points)) || end-start < 4 {
			zap.L().Debug("boundary: skipping degenerate ring", zap.Int32("part", i))
			continue
		}

		pts := p.Points[start:end]
		area := signedArea(pts)
		outer := area < 0 || current == nil
		// Rewind to counter-clockwise exteriors and clockwise holes.
		reverse := (outer && area < 0) || (!outer && area > 0)

		flat := make([]float64, 0, 2*len(pts))
		for k := range pts {
			pt := pts[k]
			if reverse {
				pt = pts[len(pts)-1-k]
			}
			flat = append(flat, pt.X, pt.Y)
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)

		if outer {
			flush()
			current = geom.NewPolygon(geom.XY)
		}
		if err := current.Push(ring); err != nil {
			zap.L().Debug("boundary: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
		}
	}
	flush()

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// signedArea is the shoelace sum; negative for clockwise rings.
func signedArea(pts []shp.Point) float64 {
	var sum float64
	for i := 0; i < len(pts)-1; i++ {
		sum += pts[i].X*pts[i+1].Y - pts[i+1].X*pts[i].Y
	}
	return sum / 2
}
