// Package reproject converts shapefiles to another spatial reference system
// by running ogr2ogr.
package reproject

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Options configures the Reprojector.
type Options struct {
	BinPath   string // default "ogr2ogr"
	TargetSRS string // default "EPSG:4326"
	SourceSRS string // optional; ogr2ogr reads the .prj when empty
	Timeout   time.Duration
}

// ToolError reports an ogr2ogr invocation that failed or produced nothing.
type ToolError struct {
	Tool   string
	Args   []string
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("reproject: %s %s", e.Tool, strings.Join(e.Args, " "))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Reprojector runs ogr2ogr once per source file. An output that exists on
// disk and is no older than its source is reused without running the tool.
type Reprojector struct {
	opts  Options
	group singleflight.Group
}

// New creates a Reprojector with defaults applied.
func New(opts Options) *Reprojector {
	if opts.BinPath == "" {
		opts.BinPath = "ogr2ogr"
	}
	if opts.TargetSRS == "" {
		opts.TargetSRS = "EPSG:4326"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Minute
	}
	return &Reprojector{opts: opts}
}

// TargetSRS returns the configured output reference system.
func (r *Reprojector) TargetSRS() string {
	return r.opts.TargetSRS
}

// DestPath returns the output path for src in srs:
// "RidingFiles/2011/13003.shp" -> "RidingFiles/2011/13003_EPSG4326.shp".
func DestPath(src, srs string) string {
	ext := filepath.Ext(src)
	tag := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return -1
	}, srs)
	return strings.TrimSuffix(src, ext) + "_" + tag + ext
}

// Args builds the ogr2ogr argument list for src -> dst.
func (r *Reprojector) Args(src, dst string) []string {
	args := []string{"-f", "ESRI Shapefile", "-t_srs", r.opts.TargetSRS}
	if r.opts.SourceSRS != "" {
		args = append(args, "-s_srs", r.opts.SourceSRS)
	}
	return append(args, dst, src)
}

// Reproject converts src and returns the output path. cached is true when
// an up-to-date output already existed and the tool was not run. A stale
// output, older than any of the source's files, is removed and rebuilt.
func (r *Reprojector) Reproject(ctx context.Context, src string) (dst string, cached bool, err error) {
	dst = DestPath(src, r.opts.TargetSRS)
	if upToDate(src, dst) {
		zap.L().Debug("reproject: using cached output", zap.String("path", dst))
		return dst, true, nil
	}

	_, err, _ = r.group.Do(dst, func() (any, error) {
		if upToDate(src, dst) {
			cached = true
			return nil, nil
		}
		if exists(dst) {
			zap.L().Info("reproject: source changed, rebuilding", zap.String("path", dst))
			removeOutputs(dst)
		}
		return nil, r.run(ctx, src, dst)
	})
	if err != nil {
		return "", false, err
	}
	return dst, cached, nil
}

func (r *Reprojector) run(ctx context.Context, src, dst string) error {
	if !exists(src) {
		return eris.Errorf("reproject: source %s does not exist", src)
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	args := r.Args(src, dst)
	cmd := exec.CommandContext(ctx, r.opts.BinPath, args...)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = eris.Wrapf(ctx.Err(), "timed out after %s", r.opts.Timeout)
		}
		removeOutputs(dst)
		return &ToolError{Tool: r.opts.BinPath, Args: args, Stderr: stderr.String(), Err: err}
	}

	if !exists(dst) {
		return &ToolError{
			Tool:   r.opts.BinPath,
			Args:   args,
			Stderr: stderr.String(),
			Err:    eris.Errorf("exited cleanly but wrote no %s", dst),
		}
	}

	zap.L().Info("reproject: converted shapefile",
		zap.String("src", src),
		zap.String("dst", dst),
		zap.String("srs", r.opts.TargetSRS),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// upToDate reports whether dst exists and is at least as new as every file
// of the src shapefile.
func upToDate(src, dst string) bool {
	out, err := os.Stat(dst)
	if err != nil {
		return false
	}
	base := strings.TrimSuffix(src, filepath.Ext(src))
	for _, ext := range []string{filepath.Ext(src), ".shx", ".dbf", ".prj"} {
		in, err := os.Stat(base + ext)
		if err != nil {
			continue
		}
		if in.ModTime().After(out.ModTime()) {
			return false
		}
	}
	return true
}

// removeOutputs clears a partial shapefile so a later run is not fooled by
// the cache check.
func removeOutputs(dst string) {
	base := strings.TrimSuffix(dst, filepath.Ext(dst))
	for _, ext := range []string{".shp", ".shx", ".dbf", ".prj", ".cpg"} {
		_ = os.Remove(base + ext)
	}
}
