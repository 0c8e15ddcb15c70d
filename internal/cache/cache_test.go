package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aperez/iattc-monitor/internal/monitor"
)

func TestLoadMissingFileIsFirstRun(t *testing.T) {
	t.Parallel()

	store := NewStore(filepath.Join(t.TempDir(), "site_cache.json"), zap.NewNop())
	snap, manifest, err := store.Load()
	require.NoError(t, err)
	require.True(t, snap.IsZero())
	require.Empty(t, manifest)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "site_cache.json")
	store := NewStore(path, zap.NewNop())

	checked := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	snap := monitor.Snapshot{ContentHash: "deadbeef", LastChecked: checked}
	manifest := monitor.Manifest{
		{
			Source:      "CatchByFlagGear/catch.csv",
			Output:      "catch.json",
			RowCount:    421,
			Checksum:    "abc123",
			ProcessedAt: checked,
		},
	}
	require.NoError(t, store.Save(snap, manifest))

	gotSnap, gotManifest, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, snap, gotSnap)
	require.Equal(t, manifest, gotManifest)

	// No staging file may remain after a successful save.
	require.NoFileExists(t, path+".tmp")
}

func TestSaveNilManifestWritesEmptyArray(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "site_cache.json")
	store := NewStore(path, zap.NewNop())
	require.NoError(t, store.Save(monitor.Snapshot{ContentHash: "deadbeef"}, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"manifest": []`)
	require.NotContains(t, string(data), `"manifest": null`)
}

func TestLoadCorruptCacheReturnsError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "site_cache.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, _, err := NewStore(path, zap.NewNop()).Load()
	require.Error(t, err)
}

func TestSaveLeavesPreviousCacheOnStagedCrash(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "site_cache.json")
	store := NewStore(path, zap.NewNop())

	first := monitor.Snapshot{ContentHash: "v1", LastChecked: time.Unix(100, 0).UTC()}
	require.NoError(t, store.Save(first, nil))

	// Simulate a crash between staging and rename: a half-written .tmp file
	// must not affect what Load observes.
	require.NoError(t, os.WriteFile(path+".tmp", []byte("{\"contentHash\":\"half"), 0o600))

	snap, _, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "v1", snap.ContentHash)
}

func TestSaveOverwritesPreviousVersion(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "site_cache.json")
	store := NewStore(path, zap.NewNop())

	require.NoError(t, store.Save(monitor.Snapshot{ContentHash: "v1"}, nil))
	require.NoError(t, store.Save(monitor.Snapshot{ContentHash: "v2"}, monitor.Manifest{{Source: "a.csv"}}))

	snap, manifest, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "v2", snap.ContentHash)
	require.Len(t, manifest, 1)
}
