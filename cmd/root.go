// Package cmd defines and implements the CLI commands for the iattc-monitor executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aperez/iattc-monitor/internal/config"
	"github.com/aperez/iattc-monitor/internal/logging"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "iattc-monitor",
		Short: "Monitors the IATTC public domain data page for new releases.",
		Long: `iattc-monitor watches the IATTC public domain data page for content
changes. When the page changes it downloads the linked zip archives,
extracts them (including nested archives), and converts every CSV file
into typed JSON, keeping a manifest so already-converted files are
never reprocessed.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional; built-in defaults apply without one)")

	cmd.AddCommand(newMonitorCmd())
	cmd.AddCommand(newRunCmd())

	return cmd
}

// setup loads configuration and builds the logger shared by all subcommands.
func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
