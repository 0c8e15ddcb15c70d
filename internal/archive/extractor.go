// Package archive extracts downloaded archives into a staging area,
// recursing into nested archives up to a bounded depth.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/aperez/iattc-monitor/internal/monitor"
)

// maxNestingDepth bounds recursion into archives-within-archives so a
// pathological upload cannot explode the staging area.
const maxNestingDepth = 5

// Extractor unpacks zip archives.
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor returns an Extractor.
func NewExtractor(logger *zap.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract unpacks archivePath under stagingDir and returns the extracted
// regular files. Nested archives are extracted in place of themselves; the
// wrapper zip never appears in the result. Individual bad entries are
// skipped; only an unopenable top-level archive is an error.
func (e *Extractor) Extract(archivePath, stagingDir string) ([]string, error) {
	visited := make(map[string]bool)
	return e.extract(archivePath, stagingDir, 0, visited)
}

func (e *Extractor) extract(archivePath, stagingDir string, depth int, visited map[string]bool) ([]string, error) {
	clean := filepath.Clean(archivePath)
	if visited[clean] {
		e.logger.Warn("skipping already-visited archive", zap.String("archive", clean))
		return nil, nil
	}
	visited[clean] = true

	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", monitor.ErrArchive, archivePath, err)
	}
	defer reader.Close()

	if err := os.MkdirAll(stagingDir, 0o750); err != nil {
		return nil, fmt.Errorf("create staging dir %s: %w", stagingDir, err)
	}

	var files []string
	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		target, ok := safeTarget(stagingDir, entry.Name)
		if !ok {
			e.logger.Warn("skipping entry escaping staging root",
				zap.String("archive", archivePath),
				zap.String("entry", entry.Name),
			)
			continue
		}
		if err := writeEntry(entry, target); err != nil {
			e.logger.Warn("skipping unreadable archive entry",
				zap.String("archive", archivePath),
				zap.String("entry", entry.Name),
				zap.Error(err),
			)
			continue
		}

		if isArchive(target) {
			inner, err := e.extractNested(target, depth, visited)
			if err != nil {
				e.logger.Warn("skipping nested archive",
					zap.String("archive", target),
					zap.Error(err),
				)
				continue
			}
			files = append(files, inner...)
			continue
		}
		files = append(files, target)
	}

	e.logger.Info("archive extracted",
		zap.String("archive", archivePath),
		zap.Int("files", len(files)),
	)
	return files, nil
}

func (e *Extractor) extractNested(wrapper string, depth int, visited map[string]bool) ([]string, error) {
	// The wrapper file itself is consumed either way; a rejected or broken
	// nested archive must not linger in staging.
	defer func() {
		if err := os.Remove(wrapper); err != nil {
			e.logger.Warn("failed to remove consumed nested archive", zap.String("archive", wrapper), zap.Error(err))
		}
	}()

	if depth+1 >= maxNestingDepth {
		return nil, fmt.Errorf("%w: nesting depth %d exceeds limit", monitor.ErrArchive, depth+1)
	}
	nestedDir := strings.TrimSuffix(wrapper, filepath.Ext(wrapper))
	return e.extract(wrapper, nestedDir, depth+1, visited)
}

// safeTarget resolves an entry name inside root, rejecting absolute paths
// and any traversal outside the staging root.
func safeTarget(root, name string) (string, bool) {
	if filepath.IsAbs(name) {
		return "", false
	}
	target := filepath.Join(root, filepath.Clean(name))
	cleanRoot := filepath.Clean(root)
	if target != cleanRoot && !strings.HasPrefix(target, cleanRoot+string(filepath.Separator)) {
		return "", false
	}
	if target == cleanRoot {
		return "", false
	}
	return target, true
}

func writeEntry(entry *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("create entry dir: %w", err)
	}
	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open entry: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create entry file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(target)
		return fmt.Errorf("write entry file: %w", err)
	}
	return dst.Close()
}

func isArchive(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".zip")
}
