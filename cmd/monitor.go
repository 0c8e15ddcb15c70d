package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aperez/iattc-monitor/internal/api"
	"github.com/aperez/iattc-monitor/internal/archive"
	"github.com/aperez/iattc-monitor/internal/cache"
	"github.com/aperez/iattc-monitor/internal/clock/system"
	"github.com/aperez/iattc-monitor/internal/config"
	"github.com/aperez/iattc-monitor/internal/convert"
	"github.com/aperez/iattc-monitor/internal/detector"
	"github.com/aperez/iattc-monitor/internal/discover"
	"github.com/aperez/iattc-monitor/internal/download"
	"github.com/aperez/iattc-monitor/internal/hash/sha256"
	"github.com/aperez/iattc-monitor/internal/id/uuid"
	"github.com/aperez/iattc-monitor/internal/metrics"
	"github.com/aperez/iattc-monitor/internal/pipeline"
)

// newMonitorCmd creates the 'monitor' subcommand, the long-running service
// mode: scheduler loop plus the status HTTP server.
func newMonitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Runs the monitoring service",
		Long: `Starts the monitor as a long-running service. A cycle runs immediately,
then repeats on the configured interval. A small HTTP server exposes
/healthz, /status and /metrics.`,
		RunE: runMonitorCommand,
	}
}

func runMonitorCommand(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	runner, err := buildRunner(cfg, logger)
	if err != nil {
		return err
	}

	metrics.Init()
	scheduler := pipeline.NewScheduler(runner, cfg.CheckInterval(), logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewServer(scheduler, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("status server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	schedulerDone := make(chan struct{})
	go func() {
		scheduler.Run(ctx)
		close(schedulerDone)
	}()

	select {
	case err := <-serverErr:
		stop()
		<-schedulerDone
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	<-schedulerDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("status server shutdown", zap.Error(err))
	}
	return nil
}

// buildRunner assembles the pipeline from configuration.
func buildRunner(cfg config.Config, logger *zap.Logger) (*pipeline.Runner, error) {
	if err := cfg.PrepareDirs(); err != nil {
		return nil, err
	}

	hasher := sha256.New()
	clk := system.New()

	det, err := detector.New(detector.Config{
		URL:       cfg.Site.URL,
		UserAgent: cfg.Site.UserAgent,
		Timeout:   cfg.RequestTimeout(),
	}, hasher, clk, logger)
	if err != nil {
		return nil, fmt.Errorf("init detector: %w", err)
	}

	policy := download.NewRetryPolicy(cfg.HTTP.MaxRetries, cfg.BackoffInitial(), cfg.BackoffMax())
	manager := download.NewManager(download.Config{
		Dir:         cfg.Paths.DownloadDir,
		Concurrency: cfg.Download.Concurrency,
		UserAgent:   cfg.Site.UserAgent,
		Timeout:     cfg.RequestTimeout(),
	}, policy, logger)

	runner := pipeline.NewRunner(
		pipeline.RunnerConfig{
			BaseURL:    cfg.Site.URL,
			StagingDir: filepath.Join(cfg.Paths.DownloadDir, "extracted"),
		},
		cache.NewStore(cfg.Paths.CacheFile, logger),
		det,
		discover.New(logger),
		manager,
		archive.NewExtractor(logger),
		convert.NewConverter(cfg.Paths.OutputDir, hasher, logger),
		hasher,
		clk,
		uuid.NewGenerator(),
		logger,
	)
	return runner, nil
}
