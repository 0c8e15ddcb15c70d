package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newRunCmd creates the 'run' subcommand: a single cycle, then exit.
func newRunCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs a single monitoring cycle and exits",
		Long: `Executes one detect-download-convert cycle and exits. Useful for cron
setups and for manual backfills with --force, which processes the page
even when its content hash has not changed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			runner, err := buildRunner(cfg, logger)
			if err != nil {
				return err
			}

			summary, err := runner.RunCycle(cmd.Context(), force)
			if err != nil {
				return fmt.Errorf("run cycle: %w", err)
			}
			logger.Info("cycle finished",
				zap.String("run_id", summary.RunID),
				zap.Bool("changed", summary.Changed),
				zap.Int("discovered", summary.Discovered),
				zap.Int("downloaded", summary.Downloaded),
				zap.Int("converted", summary.Converted),
				zap.Int("failed", summary.Failed),
				zap.Duration("duration", summary.Duration),
			)
			if summary.Failed > 0 {
				return fmt.Errorf("%d file(s) failed during the cycle", summary.Failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "process the page even if unchanged")
	return cmd
}
