package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Router sends each URL to the fetcher registered for its scheme.
type Router struct {
	HTTP Fetcher
	FTP  Fetcher
}

// NewRouter creates a Router over the given HTTP and FTP fetchers.
func NewRouter(httpFetcher, ftpFetcher Fetcher) *Router {
	return &Router{HTTP: httpFetcher, FTP: ftpFetcher}
}

func (r *Router) route(rawURL string) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: parse url")
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if r.HTTP != nil {
			return r.HTTP, nil
		}
	case "ftp":
		if r.FTP != nil {
			return r.FTP, nil
		}
	}
	return nil, eris.Errorf("fetcher: unsupported scheme %q in %s", u.Scheme, rawURL)
}

// Download implements Fetcher.
func (r *Router) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	f, err := r.route(rawURL)
	if err != nil {
		return nil, err
	}
	return f.Download(ctx, rawURL)
}

// DownloadToFile implements Fetcher.
func (r *Router) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	f, err := r.route(rawURL)
	if err != nil {
		return 0, err
	}
	return f.DownloadToFile(ctx, rawURL, path)
}

// Archive describes a source archive on local disk.
type Archive struct {
	Path       string   // downloaded file
	Dir        string   // extraction directory (ZIP archives only)
	Downloaded bool     // false when Path already existed
	Bytes      int64    // bytes downloaded
	Extracted  []string // files written by this call
}

// FetchArchive downloads rawURL into destDir unless the file is already
// present, then extracts ZIP archives into destDir/<archive name without .zip>.
// Extraction is skipped when that directory already exists.
func FetchArchive(ctx context.Context, f Fetcher, rawURL, destDir string) (*Archive, error) {
	name, err := archiveName(rawURL)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "fetcher: create data dir")
	}

	log := zap.L().With(zap.String("component", "fetcher"), zap.String("url", rawURL))
	a := &Archive{Path: filepath.Join(destDir, name)}

	if _, err := os.Stat(a.Path); err == nil {
		log.Info("archive already present, skipping download", zap.String("path", a.Path))
	} else {
		n, err := f.DownloadToFile(ctx, rawURL, a.Path)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: download %s", rawURL)
		}
		a.Downloaded = true
		a.Bytes = n
		log.Info("downloaded archive", zap.String("path", a.Path), zap.Int64("bytes", n))
	}

	if !strings.EqualFold(filepath.Ext(name), ".zip") {
		return a, nil
	}

	a.Dir = filepath.Join(destDir, strings.TrimSuffix(name, filepath.Ext(name)))
	if info, err := os.Stat(a.Dir); err == nil && info.IsDir() {
		log.Debug("archive already extracted", zap.String("dir", a.Dir))
		return a, nil
	}

	extracted, err := ExtractZIP(a.Path, a.Dir)
	if err != nil {
		_ = os.RemoveAll(a.Dir)
		return nil, eris.Wrapf(err, "fetcher: extract %s", a.Path)
	}
	a.Extracted = extracted
	log.Info("extracted archive", zap.String("dir", a.Dir), zap.Int("files", len(extracted)))
	return a, nil
}

func archiveName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", eris.Wrap(err, "fetcher: parse url")
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", eris.Errorf("fetcher: no file name in %s", rawURL)
	}
	return name, nil
}
