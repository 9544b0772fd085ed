package boundary

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// FeatureCollection renders sub as GeoJSON features. Properties carry the
// original attributes plus joined values keyed by their full column label.
func FeatureCollection(sub *RidingSubset, srid int) *geojson.FeatureCollection {
	names := FieldNames(sub.Fields)
	fc := &geojson.FeatureCollection{}
	for _, rec := range sub.Records {
		g := ToGeom(rec.Shape, srid)
		if g == nil {
			continue
		}
		props := make(map[string]interface{}, len(names)+len(rec.Values))
		for i, v := range rec.Attributes {
			props[names[i]] = v
		}
		for i, v := range rec.Values {
			if i < len(sub.Joined) {
				props[sub.Joined[i].Label] = v
			}
		}
		fc.Features = append(fc.Features, &geojson.Feature{Geometry: g, Properties: props})
	}
	return fc
}

// WriteGeoJSON writes sub as a GeoJSON FeatureCollection to path.
func WriteGeoJSON(path string, sub *RidingSubset, srid int) error {
	data, err := json.Marshal(FeatureCollection(sub, srid))
	if err != nil {
		return eris.Wrap(err, "boundary: encode geojson")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "boundary: create output dir")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "boundary: write %s", path)
	}
	return nil
}
