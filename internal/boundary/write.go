package boundary

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
)

// WriteShapefile writes sub as a shapefile at path (.shp, .shx, .dbf). The
// source .prj is copied alongside when present, and a joined subset also
// gets a "<name>_fields.csv" legend mapping DBF field names to columns.
func WriteShapefile(path string, sub *RidingSubset) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "boundary: create output dir")
	}

	w, err := shp.Create(path, sub.ShapeType)
	if err != nil {
		return eris.Wrapf(err, "boundary: create shapefile %s", path)
	}

	fields := make([]shp.Field, 0, len(sub.Fields)+len(sub.Joined))
	fields = append(fields, sub.Fields...)
	for _, j := range sub.Joined {
		fields = append(fields, j.Field)
	}

	if err := writeRecords(w, fields, sub); err != nil {
		_ = closeShapefile(w, path)
		return eris.Wrapf(err, "boundary: write shapefile %s", path)
	}
	if err := closeShapefile(w, path); err != nil {
		return err
	}

	base := strings.TrimSuffix(path, filepath.Ext(path))
	if sub.Source != "" {
		if err := copyIfExists(strings.TrimSuffix(sub.Source, filepath.Ext(sub.Source))+".prj", base+".prj"); err != nil {
			return err
		}
	}
	if len(sub.Joined) > 0 {
		if err := WriteLegend(base+"_fields.csv", sub.Joined); err != nil {
			return err
		}
	}
	return nil
}

// closeShapefile closes w and moves the attribute table to "<base>.dbf".
// go-shp v0.1.1 strips the extension including its dot, then names the
// table "<base>dbf".
func closeShapefile(w *shp.Writer, path string) error {
	w.Close()
	base := strings.TrimSuffix(path, filepath.Ext(path))
	misnamed := base + "dbf"
	if _, err := os.Stat(misnamed); os.IsNotExist(err) {
		return nil
	}
	if err := os.Rename(misnamed, base+".dbf"); err != nil {
		return eris.Wrapf(err, "boundary: rename attribute table for %s", path)
	}
	return nil
}

func writeRecords(w *shp.Writer, fields []shp.Field, sub *RidingSubset) error {
	if err := w.SetFields(fields); err != nil {
		return eris.Wrap(err, "set fields")
	}
	nBase := len(sub.Fields)
	for _, rec := range sub.Records {
		if rec.Shape == nil {
			return eris.Errorf("record %d has no geometry", rec.Index)
		}
		row := int(w.Write(rec.Shape))
		for i, v := range rec.Attributes {
			if v == "" {
				continue
			}
			if err := w.WriteAttribute(row, i, v); err != nil {
				return eris.Wrapf(err, "record %d field %s", rec.Index, fieldName(fields[i]))
			}
		}
		for i, v := range rec.Values {
			if err := w.WriteAttribute(row, nBase+i, v); err != nil {
				return eris.Wrapf(err, "record %d field %s", rec.Index, fieldName(fields[nBase+i]))
			}
		}
	}
	return nil
}

// WriteLegend writes the DBF field name to column label mapping as CSV.
func WriteLegend(path string, joined []JoinedField) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "boundary: create legend")
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	rows := [][]string{{"field", "column"}}
	for _, j := range joined {
		rows = append(rows, []string{j.Name, j.Label})
	}
	if err := w.WriteAll(rows); err != nil {
		return eris.Wrap(err, "boundary: write legend")
	}
	return nil
}

func copyIfExists(src, dst string) error {
	in, err := os.Open(src)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return eris.Wrapf(err, "boundary: open %s", src)
	}
	defer in.Close() //nolint:errcheck

	out, err := os.Create(dst)
	if err != nil {
		return eris.Wrapf(err, "boundary: create %s", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return eris.Wrapf(err, "boundary: copy %s", src)
	}
	if err := out.Close(); err != nil {
		return eris.Wrapf(err, "boundary: close %s", dst)
	}
	return nil
}
