package fetcher

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingFetcher struct {
	name  string
	calls []string
}

func (r *recordingFetcher) Download(_ context.Context, url string) (io.ReadCloser, error) {
	r.calls = append(r.calls, url)
	return io.NopCloser(strings.NewReader(r.name)), nil
}

func (r *recordingFetcher) DownloadToFile(_ context.Context, url, path string) (int64, error) {
	r.calls = append(r.calls, url)
	return int64(len(r.name)), os.WriteFile(path, []byte(r.name), 0o644)
}

func TestRouter_DispatchesByScheme(t *testing.T) {
	h := &recordingFetcher{name: "http"}
	f := &recordingFetcher{name: "ftp"}
	r := NewRouter(h, f)

	for _, u := range []string{"http://elections.ca/a.zip", "HTTPS://elections.ca/b.zip"} {
		body, err := r.Download(context.Background(), u)
		require.NoError(t, err)
		body.Close() //nolint:errcheck
	}
	_, err := r.DownloadToFile(context.Background(), "ftp://ftp.elections.ca/c.zip", filepath.Join(t.TempDir(), "c.zip"))
	require.NoError(t, err)

	assert.Len(t, h.calls, 2)
	assert.Equal(t, []string{"ftp://ftp.elections.ca/c.zip"}, f.calls)
}

func TestRouter_UnsupportedScheme(t *testing.T) {
	r := NewRouter(&recordingFetcher{}, nil)

	_, err := r.Download(context.Background(), "s3://bucket/key.zip")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported scheme")

	_, err = r.DownloadToFile(context.Background(), "ftp://host/key.zip", filepath.Join(t.TempDir(), "x"))
	require.Error(t, err)
}

func zipBytes(t *testing.T, entries ...zipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		fw, err := w.Create(e.name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(e.content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestFetchArchive_DownloadsAndExtracts(t *testing.T) {
	payload := zipBytes(t, zipEntry{"pollresults_resultatsbureau13003.csv", "header\n"})
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write(payload) //nolint:errcheck
	}))
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "2011")
	url := srv.URL + "/scripts/OVR2011/34/data_donnees/pollresults_resultatsbureau_canada.zip"

	a, err := FetchArchive(context.Background(), newTestFetcher(), url, dir)
	require.NoError(t, err)
	assert.True(t, a.Downloaded)
	assert.Equal(t, int64(len(payload)), a.Bytes)
	assert.Equal(t, filepath.Join(dir, "pollresults_resultatsbureau_canada.zip"), a.Path)
	assert.Equal(t, filepath.Join(dir, "pollresults_resultatsbureau_canada"), a.Dir)
	assert.Equal(t, []string{filepath.Join(a.Dir, "pollresults_resultatsbureau13003.csv")}, a.Extracted)

	// A second call finds both the archive and its extraction on disk.
	again, err := FetchArchive(context.Background(), newTestFetcher(), url, dir)
	require.NoError(t, err)
	assert.False(t, again.Downloaded)
	assert.Empty(t, again.Extracted)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchArchive_NonZIP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Province,Name,Number\n")) //nolint:errcheck
	}))
	defer srv.Close()

	a, err := FetchArchive(context.Background(), newTestFetcher(), srv.URL+"/ridings.csv", t.TempDir())
	require.NoError(t, err)
	assert.True(t, a.Downloaded)
	assert.Empty(t, a.Dir)
	assert.Empty(t, a.Extracted)
}

func TestFetchArchive_CorruptZIP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not a zip")) //nolint:errcheck
	}))
	defer srv.Close()

	dir := t.TempDir()
	_, err := FetchArchive(context.Background(), newTestFetcher(), srv.URL+"/pd308.2011.zip", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetcher: extract")

	_, statErr := os.Stat(filepath.Join(dir, "pd308.2011"))
	assert.True(t, os.IsNotExist(statErr), "partial extraction dir should be removed")
}

func TestFetchArchive_NoFileName(t *testing.T) {
	_, err := FetchArchive(context.Background(), &recordingFetcher{}, "http://elections.ca/", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no file name")
}

func TestFetchArchive_DownloadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := FetchArchive(context.Background(), newTestFetcher(), srv.URL+"/missing.zip", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetcher: download")
}
