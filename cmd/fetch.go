package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/riding-cli/internal/config"
	"github.com/sells-group/riding-cli/internal/election"
	"github.com/sells-group/riding-cli/internal/fetcher"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download and extract the results and boundary archives",
	Long:  "Downloads the election's poll results archive and polling-district boundary archive into <data-dir>/<year>/ and extracts them. Archives already on disk are not downloaded again.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		m, err := selectManifest()
		if err != nil {
			return err
		}

		archives, err := fetchElection(ctx, newRouter(cfg.Fetch), m, dataDir(cmd))
		if err != nil {
			return err
		}
		formatArchives(os.Stdout, archives)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}

func newRouter(fc config.FetchConfig) *fetcher.Router {
	timeout := time.Duration(fc.TimeoutSecs) * time.Second
	return fetcher.NewRouter(
		fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:  fc.UserAgent,
			Timeout:    timeout,
			MaxRetries: fc.MaxRetries,
			RatePerSec: fc.RatePerSec,
		}),
		fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: timeout, MaxRetries: fc.MaxRetries}),
	)
}

// fetchElection downloads both source archives of m concurrently.
func fetchElection(ctx context.Context, f fetcher.Fetcher, m election.Manifest, dir string) ([]*fetcher.Archive, error) {
	urls := []string{m.ResultsURL, m.BoundaryURL}
	dest := m.YearDir(dir)
	archives := make([]*fetcher.Archive, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	for i, u := range urls {
		if u == "" {
			continue
		}
		i, u := i, u
		g.Go(func() error {
			a, err := fetcher.FetchArchive(gctx, f, u, dest)
			if err != nil {
				return err
			}
			archives[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrapf(err, "fetch %d", m.Year)
	}

	out := archives[:0]
	for _, a := range archives {
		if a != nil {
			out = append(out, a)
		}
	}
	zap.L().Info("fetch complete", zap.Int("year", m.Year), zap.Int("archives", len(out)), zap.String("dir", dest))
	return out, nil
}

func formatArchives(w io.Writer, archives []*fetcher.Archive) {
	for _, a := range archives {
		state := "present"
		if a.Downloaded {
			state = fmt.Sprintf("downloaded %d bytes", a.Bytes)
		}
		_, _ = fmt.Fprintf(w, "%s (%s)\n", a.Path, state)
		if a.Dir != "" {
			_, _ = fmt.Fprintf(w, "  -> %s (%d files extracted)\n", a.Dir, len(a.Extracted))
		}
	}
}
