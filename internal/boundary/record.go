// Package boundary loads polling-district boundary shapefiles, subsets them
// by riding, joins vote shares onto the attributes, and writes the result
// back out as shapefiles, GeoJSON or EWKB.
package boundary

import (
	"math"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Record is one polling-district feature. Index is its position in the
// parent RecordSet, so the geometry can always be found again there.
type Record struct {
	Index      int
	Shape      shp.Shape
	Attributes []string

	// Values holds joined vote-share columns, aligned with RidingSubset.Joined.
	Values []any
}

// RecordSet is a boundary shapefile read fully into memory. It is not
// modified after Load and may be shared across goroutines.
type RecordSet struct {
	Path        string
	ShapeType   shp.ShapeType
	Fields      []shp.Field
	Records     []Record
	RidingField int

	// Unparsable counts records whose riding attribute is not a number;
	// they belong to no riding.
	Unparsable int

	ridings []int
	valid   []bool
}

// Load reads every record of a shapefile. ridingField is the 0-based
// attribute index holding the riding number.
func Load(path string, ridingField int) (*RecordSet, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	if ridingField < 0 || ridingField >= len(fields) {
		return nil, &SchemaError{
			Field:     "#" + strconv.Itoa(ridingField),
			Available: FieldNames(fields),
		}
	}

	set := &RecordSet{
		Path:        path,
		ShapeType:   reader.GeometryType,
		Fields:      fields,
		RidingField: ridingField,
	}

	for reader.Next() {
		n, shape := reader.Shape()
		attrs := make([]string, len(fields))
		for i := range fields {
			attrs[i] = cleanAttribute(reader.Attribute(i))
		}
		set.Records = append(set.Records, Record{Index: n, Shape: shape, Attributes: attrs})

		riding, ok := parseRiding(attrs[ridingField])
		if !ok {
			set.Unparsable++
		}
		set.ridings = append(set.ridings, riding)
		set.valid = append(set.valid, ok)
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "boundary: read shapefile %s", path)
	}

	zap.L().Debug("boundary: loaded shapefile",
		zap.String("path", path),
		zap.Int("records", len(set.Records)),
		zap.Int("fields", len(fields)),
		zap.Int("unparsable_riding", set.Unparsable),
	)
	if set.Unparsable > 0 {
		zap.L().Warn("boundary: records without a riding number",
			zap.String("path", path),
			zap.String("field", fields[ridingField].String()),
			zap.Int("count", set.Unparsable),
		)
	}
	return set, nil
}

// NewRecordSet builds a RecordSet from records already in memory. Record
// indexes are reassigned to their positions.
func NewRecordSet(shapeType shp.ShapeType, fields []shp.Field, records []Record, ridingField int) (*RecordSet, error) {
	if ridingField < 0 || ridingField >= len(fields) {
		return nil, &SchemaError{Field: "#" + strconv.Itoa(ridingField), Available: FieldNames(fields)}
	}
	set := &RecordSet{ShapeType: shapeType, Fields: fields, RidingField: ridingField}
	for i, r := range records {
		if len(r.Attributes) != len(fields) {
			return nil, eris.Errorf("boundary: record %d has %d attributes, want %d", i, len(r.Attributes), len(fields))
		}
		r.Index = i
		set.Records = append(set.Records, r)
		riding, ok := parseRiding(r.Attributes[ridingField])
		if !ok {
			set.Unparsable++
		}
		set.ridings = append(set.ridings, riding)
		set.valid = append(set.valid, ok)
	}
	return set, nil
}

// Len returns the number of records.
func (s *RecordSet) Len() int {
	return len(s.Records)
}

// Geometry returns the shape at position i.
func (s *RecordSet) Geometry(i int) shp.Shape {
	return s.Records[i].Shape
}

// Riding returns the riding number of record i and whether it parsed.
func (s *RecordSet) Riding(i int) (int, bool) {
	return s.ridings[i], s.valid[i]
}

// Ridings returns the distinct riding numbers in first-seen order.
func (s *RecordSet) Ridings() []int {
	seen := make(map[int]bool)
	var out []int
	for i, r := range s.ridings {
		if s.valid[i] && !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

// FieldIndex returns the position of the named field, ignoring case, or -1.
func FieldIndex(fields []shp.Field, name string) int {
	for i, f := range fields {
		if strings.EqualFold(fieldName(f), name) {
			return i
		}
	}
	return -1
}

// FieldNames lists field names in order.
func FieldNames(fields []shp.Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = fieldName(f)
	}
	return names
}

func fieldName(f shp.Field) string {
	return strings.TrimRight(f.String(), "\x00")
}

func cleanAttribute(v string) string {
	return strings.TrimSpace(strings.TrimRight(v, "\x00"))
}

// parseRiding accepts "13003" as well as DBF numerics written as "13003.0".
func parseRiding(v string) (int, bool) {
	if n, err := strconv.Atoi(v); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}
