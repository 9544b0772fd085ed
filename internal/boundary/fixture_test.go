package boundary

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/riding-cli/internal/votes"
)

const testPRJ = `GEOGCS["GCS_North_American_1983",DATUM["D_North_American_1983",SPHEROID["GRS_1980",6378137.0,298.257222101]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

// pdFields mirrors the polling-district layout: the riding number sits at
// position 6 and the station number in PD_NUM.
func pdFields() []shp.Field {
	return []shp.Field{
		shp.NumberField("PD_ID", 10),
		shp.StringField("EMRP_NAME", 20),
		shp.NumberField("PD_NUM", 5),
		shp.StringField("PD_NBR_SFX", 2),
		shp.StringField("POLL_NAME", 40),
		shp.StringField("PROV", 2),
		shp.NumberField("FED_NUM", 6),
	}
}

type pd struct {
	station string
	riding  string
}

// square returns a clockwise unit square at (x, y).
func square(x, y float64) *shp.Polygon {
	p := shp.Polygon(*shp.NewPolyLine([][]shp.Point{ring(x, y, 1, true)}))
	return &p
}

func ring(x, y, size float64, clockwise bool) []shp.Point {
	pts := []shp.Point{
		{X: x, Y: y},
		{X: x, Y: y + size},
		{X: x + size, Y: y + size},
		{X: x + size, Y: y},
		{X: x, Y: y},
	}
	if !clockwise {
		for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
			pts[i], pts[j] = pts[j], pts[i]
		}
	}
	return pts
}

func pdRecord(i int, p pd) Record {
	return Record{
		Shape: square(float64(i), 0),
		Attributes: []string{
			strconv.Itoa(i + 1), "Area " + p.station, p.station, "", "School " + p.station, "NB", p.riding,
		},
	}
}

// writeFixture writes a polling-district shapefile with a .prj and returns
// the .shp path.
func writeFixture(t *testing.T, rows []pd) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pd308.2011", "pd_a.shp")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	fields := pdFields()
	require.NoError(t, w.SetFields(fields))
	for i, p := range rows {
		rec := pdRecord(i, p)
		n := int(w.Write(rec.Shape))
		for j, v := range rec.Attributes {
			if v == "" {
				continue
			}
			require.NoError(t, w.WriteAttribute(n, j, v))
		}
	}
	require.NoError(t, closeShapefile(w, path))

	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "pd_a.prj"), []byte(testPRJ), 0o644))
	return path
}

// memorySet builds a RecordSet without touching disk.
func memorySet(t *testing.T, rows []pd) *RecordSet {
	t.Helper()
	records := make([]Record, len(rows))
	for i, p := range rows {
		records[i] = pdRecord(i, p)
	}
	set, err := NewRecordSet(shp.POLYGON, pdFields(), records, 6)
	require.NoError(t, err)
	return set
}

func voteTable(t *testing.T, stations ...string) *votes.Table {
	t.Helper()
	var recs []votes.VoteRecord
	for _, s := range stations {
		recs = append(recs,
			votes.VoteRecord{Riding: 13003, Station: s, FirstName: "Ann", FamilyName: "X", Affiliation: "Liberal", Votes: 30},
			votes.VoteRecord{Riding: 13003, Station: s, FirstName: "Bob", FamilyName: "Y", Affiliation: "Green Party", Votes: 10},
		)
	}
	table, err := votes.Transform(recs)
	require.NoError(t, err)
	return table
}
