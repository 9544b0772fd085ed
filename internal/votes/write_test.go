package votes

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func sampleTable(t *testing.T) *Table {
	t.Helper()
	table, err := Transform([]VoteRecord{
		rec("101A", "Ann", "X", "Liberal", 30),
		rec("101A", "Bob", "Y", "Green Party", 10),
		rec("101B", "Ann", "X", "Liberal", 20),
		rec("101B", "Bob", "Y", "Green Party", 5),
		rec("102", "Ann", "X", "Liberal", 0),
	})
	require.NoError(t, err)
	return table
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Output", "2011Results13003.csv")
	require.NoError(t, WriteCSV(path, sampleTable(t)))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{
		"Polling Station Number", "Ann X / Liberal", "Bob Y / Green Party", "Vote Totals",
		"Ann X / Liberal (%)", "Bob Y / Green Party (%)",
	}, rows[0])
	assert.Equal(t, []string{"101", "50", "15", "65", "76.92", "23.08"}, rows[1])
	assert.Equal(t, []string{"102", "0", "0", "0", "0.00", "0.00"}, rows[2])
}

func TestWriteCSV_BadDir(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	err := WriteCSV(filepath.Join(blocker, "out.csv"), sampleTable(t))
	assert.Error(t, err)
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "2011Results13003.xlsx")
	require.NoError(t, WriteXLSX(path, "13003", sampleTable(t)))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)

	sheet := f.Sheets[0]
	assert.Equal(t, "13003", sheet.Name)
	require.Len(t, sheet.Rows, 3)
	assert.Equal(t, "Polling Station Number", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "Vote Totals", sheet.Rows[0].Cells[3].String())
	assert.Equal(t, "101", sheet.Rows[1].Cells[0].String())

	total, err := sheet.Rows[1].Cells[3].Int()
	require.NoError(t, err)
	assert.Equal(t, 65, total)

	share, err := sheet.Rows[1].Cells[4].Float()
	require.NoError(t, err)
	assert.InDelta(t, 76.92, share, 1e-9)
}
