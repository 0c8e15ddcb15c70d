// Package monitor defines the core types and interfaces shared by the
// ingestion pipeline stages.
package monitor

import "time"

// Snapshot captures the last observed state of the monitored page.
type Snapshot struct {
	ContentHash string    `json:"contentHash"`
	LastChecked time.Time `json:"lastChecked"`
}

// IsZero reports whether the snapshot has never been populated.
func (s Snapshot) IsZero() bool {
	return s.ContentHash == "" && s.LastChecked.IsZero()
}

// ManifestEntry records one successfully converted source file.
type ManifestEntry struct {
	Source      string    `json:"source"`
	Output      string    `json:"output"`
	RowCount    int       `json:"rowCount"`
	Checksum    string    `json:"checksum"`
	ProcessedAt time.Time `json:"processedAt"`
}

// Manifest is the durable record of converted files, keyed by source path.
type Manifest []ManifestEntry

// Processed reports whether source was already converted with the same
// content checksum. A checksum mismatch means the source changed and must
// be converted again.
func (m Manifest) Processed(source, checksum string) bool {
	for _, e := range m {
		if e.Source == source {
			return e.Checksum == checksum
		}
	}
	return false
}

// Upsert replaces the entry for the same source or appends a new one.
func (m Manifest) Upsert(entry ManifestEntry) Manifest {
	for i, e := range m {
		if e.Source == entry.Source {
			m[i] = entry
			return m
		}
	}
	return append(m, entry)
}

// DownloadStatus tracks the lifecycle of a download task.
type DownloadStatus string

// Download task states.
const (
	DownloadPending    DownloadStatus = "pending"
	DownloadInProgress DownloadStatus = "in_progress"
	DownloadSucceeded  DownloadStatus = "succeeded"
	DownloadFailed     DownloadStatus = "failed"
)

// DownloadResult reports the outcome of one download task.
type DownloadResult struct {
	URL      string
	Path     string
	Status   DownloadStatus
	Attempts int
	Bytes    int64
	Err      error
}

// ConvertResult reports the outcome of one tabular-to-JSON conversion.
type ConvertResult struct {
	OutputPath string
	Rows       int
	Checksum   string
}

// RunSummary describes one completed scheduler cycle.
type RunSummary struct {
	RunID      string        `json:"runId"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"durationNs"`
	Changed    bool          `json:"changed"`
	Discovered int           `json:"discovered"`
	Downloaded int           `json:"downloaded"`
	Converted  int           `json:"converted"`
	Failed     int           `json:"failed"`
}
