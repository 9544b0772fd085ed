package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/riding-cli/internal/config"
	"github.com/sells-group/riding-cli/internal/election"
)

var (
	cfg *config.Config

	manifestPath string
	electionYear int
)

var rootCmd = &cobra.Command{
	Use:   "riding-cli",
	Short: "Per-riding election results and polling-district boundaries",
	Long:  "Downloads Elections Canada poll results and polling-district boundaries, pivots votes into per-station vote shares, and writes per-riding boundary subsets joined with those shares.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&manifestPath, "manifest", "", "election manifest YAML (default: built-in 2011 manifest, or data.manifest)")
	rootCmd.PersistentFlags().IntVar(&electionYear, "year", 0, "election year to process (required when the manifest lists several)")
	rootCmd.PersistentFlags().String("data-dir", "", "directory holding downloaded election data (overrides data.dir)")
}

// selectManifest resolves the election cycle from flags and config.
func selectManifest() (election.Manifest, error) {
	path := manifestPath
	if path == "" {
		path = cfg.Data.Manifest
	}
	return election.Select(path, electionYear)
}

// dataDir returns --data-dir when set, otherwise data.dir.
func dataDir(cmd *cobra.Command) string {
	if d, _ := cmd.Flags().GetString("data-dir"); d != "" {
		return d
	}
	return cfg.Data.Dir
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
