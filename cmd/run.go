package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/riding-cli/internal/config"
	"github.com/sells-group/riding-cli/internal/election"
	"github.com/sells-group/riding-cli/internal/pipeline"
	"github.com/sells-group/riding-cli/internal/reproject"
	"github.com/sells-group/riding-cli/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build vote-share tables and boundary subsets for each riding",
	Long:  "Reads each riding's poll results, writes the per-station vote-share table, subsets the polling-district boundaries to the riding, joins the shares onto them, and optionally reprojects the result.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		m, err := selectManifest()
		if err != nil {
			return err
		}
		if err := applyRunFlags(cmd, cfg); err != nil {
			return err
		}
		dir := dataDir(cmd)

		ridings, _ := cmd.Flags().GetIntSlice("riding")
		if len(ridings) == 0 {
			ridings, err = election.ResolveRidings(ctx, m, dir)
			if err != nil {
				return err
			}
		}

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		var rp *reproject.Reprojector
		if cfg.Reproject.Enabled {
			rp = reproject.New(reprojectOptions(cfg.Reproject, m))
		}

		opts := pipeline.OptionsFromConfig(cfg)
		opts.DataDir = dir
		p := pipeline.New(m, opts, st, rp)

		report, err := p.Run(ctx, ridings)
		if report != nil {
			pipeline.FormatReport(os.Stdout, report)
		}
		if err != nil {
			return err
		}
		if report.Failed > 0 {
			return eris.Errorf("run: %d of %d ridings failed; see %s", report.Failed, len(report.Ridings), p.ReportPath())
		}
		return nil
	},
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntSlice("riding", nil, "riding numbers to process (default: manifest ridings or roster)")
	f.String("output", "", "output directory (overrides output.dir)")
	f.String("format", "", "vote table format: csv or xlsx (overrides output.format)")
	f.Int("concurrency", 0, "ridings processed in parallel (overrides batch.concurrency)")
	f.Bool("no-join", false, "write boundary subsets without vote-share columns")
	f.Bool("geojson", false, "also write a GeoJSON copy of each subset")
	f.Bool("reproject", false, "reproject each subset with ogr2ogr")
	f.String("target-srs", "", "reprojection target SRS (overrides reproject.target_srs)")
}

// applyRunFlags overlays explicitly set flags on the loaded config.
func applyRunFlags(cmd *cobra.Command, c *config.Config) error {
	f := cmd.Flags()
	if f.Changed("output") {
		c.Output.Dir, _ = f.GetString("output")
	}
	if f.Changed("format") {
		c.Output.Format, _ = f.GetString("format")
	}
	if f.Changed("concurrency") {
		c.Batch.Concurrency, _ = f.GetInt("concurrency")
	}
	if f.Changed("no-join") {
		noJoin, _ := f.GetBool("no-join")
		c.Output.Join = !noJoin
	}
	if f.Changed("geojson") {
		c.Output.GeoJSON, _ = f.GetBool("geojson")
	}
	if f.Changed("reproject") {
		c.Reproject.Enabled, _ = f.GetBool("reproject")
	}
	if f.Changed("target-srs") {
		c.Reproject.TargetSRS, _ = f.GetString("target-srs")
	}
	return c.Validate()
}

func reprojectOptions(rc config.ReprojectConfig, m election.Manifest) reproject.Options {
	src := rc.SourceSRS
	if src == "" {
		src = m.SourceSRS
	}
	return reproject.Options{
		BinPath:   rc.BinPath,
		TargetSRS: rc.TargetSRS,
		SourceSRS: src,
		Timeout:   time.Duration(rc.TimeoutSecs) * time.Second,
	}
}
