// Package cache persists the site snapshot and processing manifest as a
// single JSON file, replaced atomically on every save.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/aperez/iattc-monitor/internal/monitor"
)

// Store reads and writes the cache file.
type Store struct {
	path   string
	logger *zap.Logger
}

// NewStore returns a store backed by the file at path.
func NewStore(path string, logger *zap.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// cacheFile is the on-disk shape. time.Time marshals as RFC 3339, which
// satisfies the ISO-8601 contract for lastChecked and processedAt.
type cacheFile struct {
	ContentHash string                  `json:"contentHash"`
	LastChecked time.Time               `json:"lastChecked"`
	Manifest    []monitor.ManifestEntry `json:"manifest"`
}

// Load returns the persisted snapshot and manifest. A missing cache file is
// not an error: the zero snapshot signals a first run.
func (s *Store) Load() (monitor.Snapshot, monitor.Manifest, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return monitor.Snapshot{}, nil, nil
		}
		return monitor.Snapshot{}, nil, fmt.Errorf("read cache %s: %w", s.path, err)
	}

	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return monitor.Snapshot{}, nil, fmt.Errorf("decode cache %s: %w", s.path, err)
	}

	snap := monitor.Snapshot{
		ContentHash: cf.ContentHash,
		LastChecked: cf.LastChecked,
	}
	return snap, monitor.Manifest(cf.Manifest), nil
}

// Save writes the snapshot and manifest, staging to a temporary file in the
// same directory and renaming into place. A crash mid-save leaves the
// previous cache file intact.
func (s *Store) Save(snap monitor.Snapshot, m monitor.Manifest) error {
	// A nil manifest must still serialize as an array, not null.
	if m == nil {
		m = monitor.Manifest{}
	}
	cf := cacheFile{
		ContentHash: snap.ContentHash,
		LastChecked: snap.LastChecked,
		Manifest:    m,
	}
	payload, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create cache dir %s: %w", dir, err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return fmt.Errorf("write cache staging file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		// Leave no staging file behind on a failed rename.
		if rmErr := os.Remove(tmp); rmErr != nil {
			s.logger.Warn("failed to remove cache staging file", zap.String("path", tmp), zap.Error(rmErr))
		}
		return fmt.Errorf("replace cache %s: %w", s.path, err)
	}
	return nil
}
