// Package pipeline orchestrates one full ingestion cycle and the scheduler
// loop that repeats it.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/aperez/iattc-monitor/internal/metrics"
	"github.com/aperez/iattc-monitor/internal/monitor"
)

// Detector reports whether the monitored page changed.
type Detector interface {
	Detect(ctx context.Context, prev monitor.Snapshot) (changed bool, cur monitor.Snapshot, body []byte, err error)
}

// Discoverer extracts archive URLs from page content.
type Discoverer interface {
	Discover(base string, page []byte) []string
}

// Downloader fetches archives concurrently.
type Downloader interface {
	FetchAll(ctx context.Context, urls []string) []monitor.DownloadResult
}

// Extractor unpacks an archive into a staging directory.
type Extractor interface {
	Extract(archivePath, stagingDir string) ([]string, error)
}

// Converter turns one tabular file into JSON output.
type Converter interface {
	Convert(srcPath string) (monitor.ConvertResult, error)
}

// CacheStore persists the snapshot and manifest between cycles.
type CacheStore interface {
	Load() (monitor.Snapshot, monitor.Manifest, error)
	Save(monitor.Snapshot, monitor.Manifest) error
}

// RunnerConfig carries the paths and URL a cycle operates on.
type RunnerConfig struct {
	BaseURL    string
	StagingDir string
}

// Runner executes one full detect-download-convert cycle.
type Runner struct {
	cfg        RunnerConfig
	cache      CacheStore
	detector   Detector
	discoverer Discoverer
	downloader Downloader
	extractor  Extractor
	converter  Converter
	hasher     monitor.Hasher
	clock      monitor.Clock
	ids        monitor.IDGenerator
	logger     *zap.Logger
}

// NewRunner constructs a Runner.
func NewRunner(
	cfg RunnerConfig,
	cache CacheStore,
	detector Detector,
	discoverer Discoverer,
	downloader Downloader,
	extractor Extractor,
	converter Converter,
	hasher monitor.Hasher,
	clock monitor.Clock,
	ids monitor.IDGenerator,
	logger *zap.Logger,
) *Runner {
	return &Runner{
		cfg:        cfg,
		cache:      cache,
		detector:   detector,
		discoverer: discoverer,
		downloader: downloader,
		extractor:  extractor,
		converter:  converter,
		hasher:     hasher,
		clock:      clock,
		ids:        ids,
		logger:     logger,
	}
}

// RunCycle performs one full cycle. Per-file failures are absorbed; the
// manifest and cache commit only genuinely successful outcomes. The returned
// error covers cycle-level failures (site unreachable, cache unsaveable)
// that the scheduler treats as a skipped cycle, not a fatal condition.
func (r *Runner) RunCycle(ctx context.Context, force bool) (summary monitor.RunSummary, err error) {
	started := r.clock.Now()
	runID, idErr := r.ids.NewID()
	if idErr != nil {
		r.logger.Warn("run id generation failed", zap.Error(idErr))
	}
	logger := r.logger.With(zap.String("run_id", runID))
	summary = monitor.RunSummary{RunID: runID, StartedAt: started}
	defer func() {
		summary.Duration = r.clock.Now().Sub(started)
	}()

	logger.Info("starting monitoring cycle", zap.Bool("force", force))

	snap, manifest, err := r.cache.Load()
	if err != nil {
		logger.Warn("cache unreadable, treating as first run", zap.Error(err))
		snap, manifest = monitor.Snapshot{}, nil
	}

	changed, cur, body, err := r.detector.Detect(ctx, snap)
	if err != nil {
		metrics.CycleCompleted("error", r.clock.Now().Sub(started))
		return summary, fmt.Errorf("detect changes: %w", err)
	}
	summary.Changed = changed

	if !changed && !force {
		logger.Info("no changes detected")
		metrics.CycleCompleted("unchanged", r.clock.Now().Sub(started))
		return summary, nil
	}
	if changed {
		logger.Info("changes detected on monitored page")
	}

	urls := r.discoverer.Discover(r.cfg.BaseURL, body)
	summary.Discovered = len(urls)
	if len(urls) == 0 {
		logger.Warn("no archive links found on changed page")
	}

	results := r.downloader.FetchAll(ctx, urls)
	for _, res := range results {
		metrics.DownloadCompleted(string(res.Status), res.Bytes)
		if res.Status != monitor.DownloadSucceeded {
			logger.Error("download failed",
				zap.String("url", res.URL),
				zap.Int("attempts", res.Attempts),
				zap.Error(res.Err),
			)
			summary.Failed++
			continue
		}
		summary.Downloaded++
		manifest = r.processArchive(ctx, logger, res.Path, manifest, &summary)
	}

	if err := r.cache.Save(cur, manifest); err != nil {
		metrics.CycleCompleted("error", r.clock.Now().Sub(started))
		return summary, fmt.Errorf("save cache: %w", err)
	}

	metrics.CycleCompleted("changed", r.clock.Now().Sub(started))
	logger.Info("monitoring cycle complete",
		zap.Int("discovered", summary.Discovered),
		zap.Int("downloaded", summary.Downloaded),
		zap.Int("converted", summary.Converted),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

// processArchive extracts one downloaded archive and converts its tabular
// files, skipping sources whose checksum already appears in the manifest.
func (r *Runner) processArchive(
	ctx context.Context,
	logger *zap.Logger,
	archivePath string,
	manifest monitor.Manifest,
	summary *monitor.RunSummary,
) monitor.Manifest {
	staging := filepath.Join(r.cfg.StagingDir, stem(archivePath))
	files, err := r.extractor.Extract(archivePath, staging)
	if err != nil {
		logger.Error("archive extraction failed",
			zap.String("archive", archivePath),
			zap.Error(err),
		)
		summary.Failed++
		return manifest
	}

	for _, f := range files {
		if ctx.Err() != nil {
			return manifest
		}
		if !isTabular(f) {
			logger.Debug("skipping non-tabular file", zap.String("file", f))
			continue
		}
		source := r.sourceKey(f)

		checksum, err := r.fileChecksum(f)
		if err != nil {
			logger.Warn("cannot checksum extracted file", zap.String("file", f), zap.Error(err))
			summary.Failed++
			continue
		}
		if manifest.Processed(source, checksum) {
			logger.Debug("source already converted, skipping", zap.String("source", source))
			continue
		}

		res, err := r.converter.Convert(f)
		if err != nil {
			logger.Error("conversion failed", zap.String("source", source), zap.Error(err))
			summary.Failed++
			continue
		}
		manifest = manifest.Upsert(monitor.ManifestEntry{
			Source:      source,
			Output:      filepath.Base(res.OutputPath),
			RowCount:    res.Rows,
			Checksum:    res.Checksum,
			ProcessedAt: r.clock.Now(),
		})
		summary.Converted++
		metrics.ConversionCompleted(res.Rows)
	}
	return manifest
}

// sourceKey is the manifest key for an extracted file: its path relative to
// the staging root, which is stable across runs for the same archive.
func (r *Runner) sourceKey(path string) string {
	rel, err := filepath.Rel(r.cfg.StagingDir, path)
	if err != nil {
		return filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}

func (r *Runner) fileChecksum(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return r.hasher.Hash(data)
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func isTabular(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".csv")
}
