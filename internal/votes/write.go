package votes

import (
	"encoding/csv"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// WriteCSV writes the table to path, creating parent directories.
func WriteCSV(path string, t *Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "votes: create output dir")
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "votes: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.WriteAll(t.Records()); err != nil {
		return eris.Wrapf(err, "votes: write %s", path)
	}
	return nil
}

// WriteXLSX writes the table as a single-sheet workbook. Counts are stored as
// integers and shares as two-decimal numbers.
func WriteXLSX(path, sheetName string, t *Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "votes: create output dir")
	}

	file := xlsx.NewFile()
	sheet, err := file.AddSheet(sheetName)
	if err != nil {
		return eris.Wrapf(err, "votes: add sheet %q", sheetName)
	}

	header := sheet.AddRow()
	for _, h := range t.Header() {
		header.AddCell().SetString(h)
	}

	for _, r := range t.Rows {
		row := sheet.AddRow()
		row.AddCell().SetString(r.Station)
		for _, v := range r.Votes {
			row.AddCell().SetInt(v)
		}
		row.AddCell().SetInt(r.Total)
		for _, p := range r.Percent {
			row.AddCell().SetFloatWithFormat(p, "0.00")
		}
	}

	if err := file.Save(path); err != nil {
		return eris.Wrapf(err, "votes: save %s", path)
	}
	return nil
}
