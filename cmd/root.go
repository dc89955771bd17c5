// Package cmd defines and implements the CLI commands for the
// jobharvest executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jobharvest/internal/config"
	"jobharvest/internal/logging"
)

var cfgFile string

// runtime holds the services every subcommand needs. It is built once
// in PersistentPreRunE; the factory is a variable so tests can swap it.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
}

var buildRuntime = func() (*runtime, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return &runtime{cfg: cfg, logger: logger}, nil
}

var rt *runtime

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobharvest",
		Short: "A concurrent harvester for job listing sites.",
		Long: `jobharvest walks the paginated search listings of a job site,
deduplicates the postings it finds, extracts the structured fields of
each one through a bounded-retry worker pool, and persists the results
to CSV, JSON and a local SQLite database alongside a raw HTML archive.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			rt, err = buildRuntime()
			if err != nil {
				return fmt.Errorf("initialize services: %w", err)
			}
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt != nil {
				_ = rt.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults plus JOBHARVEST_* env)")
	cmd.AddCommand(newHarvestCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
