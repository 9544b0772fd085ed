package fetcher

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type zipEntry struct {
	name, content string
}

func createTestZIP(t *testing.T, dir string, entries ...zipEntry) string {
	t.Helper()
	zipPath := filepath.Join(dir, "test.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	w := zip.NewWriter(f)
	for _, e := range entries {
		fw, err := w.Create(e.name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(e.content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return zipPath
}

func TestExtractZIP_ResultsArchive(t *testing.T) {
	zipPath := createTestZIP(t, t.TempDir(),
		zipEntry{"pollresults_resultatsbureau13003.csv", "a,b\n"},
		zipEntry{"pollresults_resultatsbureau13008.csv", "c,d\n"},
	)

	destDir := t.TempDir()
	extracted, err := ExtractZIP(zipPath, destDir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(destDir, "pollresults_resultatsbureau13003.csv"),
		filepath.Join(destDir, "pollresults_resultatsbureau13008.csv"),
	}, extracted)

	data, err := os.ReadFile(extracted[1])
	require.NoError(t, err)
	assert.Equal(t, "c,d\n", string(data))
}

func TestExtractZIP_WithSubdirectory(t *testing.T) {
	zipPath := createTestZIP(t, t.TempDir(),
		zipEntry{"pd308.2011/", ""},
		zipEntry{"pd308.2011/pd_a.dbf", "dbf"},
	)

	destDir := t.TempDir()
	extracted, err := ExtractZIP(zipPath, destDir)
	require.NoError(t, err)
	require.Len(t, extracted, 1)

	data, err := os.ReadFile(filepath.Join(destDir, "pd308.2011", "pd_a.dbf"))
	require.NoError(t, err)
	assert.Equal(t, "dbf", string(data))
}

func TestExtractZIP_BackslashNames(t *testing.T) {
	zipPath := createTestZIP(t, t.TempDir(), zipEntry{`pd308.2011\pd_a.prj`, "GEOGCS"})

	destDir := t.TempDir()
	_, err := ExtractZIP(zipPath, destDir)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(destDir, "pd308.2011", "pd_a.prj"))
	assert.NoError(t, err)
}

func TestExtractZIP_SkipsResourceForks(t *testing.T) {
	zipPath := createTestZIP(t, t.TempDir(),
		zipEntry{"pd_a.shp", "shp"},
		zipEntry{"__MACOSX/._pd_a.shp", "junk"},
	)

	destDir := t.TempDir()
	extracted, err := ExtractZIP(zipPath, destDir)
	require.NoError(t, err)
	assert.Len(t, extracted, 1)

	_, err = os.Stat(filepath.Join(destDir, "__MACOSX"))
	assert.True(t, os.IsNotExist(err))
}

func TestExtractZIP_ZipSlipPrevention(t *testing.T) {
	zipPath := createTestZIP(t, t.TempDir(), zipEntry{"../../../etc/passwd", "malicious"})

	_, err := ExtractZIP(zipPath, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zip slip")
}

func TestExtractZIP_InvalidArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notazip.zip")
	require.NoError(t, os.WriteFile(path, []byte("this is not a zip"), 0o644))

	_, err := ExtractZIP(path, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zip: open archive")
}
