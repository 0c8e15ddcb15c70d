// Package metrics exposes Prometheus collectors for the monitor service.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesTotal          *prometheus.CounterVec
	cycleDurationSeconds *prometheus.HistogramVec
	downloadsTotal       *prometheus.CounterVec
	downloadBytesTotal   prometheus.Counter
	filesConvertedTotal  prometheus.Counter
	rowsConvertedTotal   prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		cyclesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iattc_monitor_cycles_total",
				Help: "Total number of monitoring cycles, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		cycleDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "iattc_monitor_cycle_duration_seconds",
				Help:    "Histogram of cycle durations, labeled by outcome.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
			},
			[]string{"outcome"},
		)

		downloadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iattc_monitor_downloads_total",
				Help: "Total number of archive download tasks, labeled by status.",
			},
			[]string{"status"},
		)

		downloadBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "iattc_monitor_download_bytes_total",
				Help: "Total bytes written by successful archive downloads.",
			},
		)

		filesConvertedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "iattc_monitor_files_converted_total",
				Help: "Total tabular files converted to JSON.",
			},
		)

		rowsConvertedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "iattc_monitor_rows_converted_total",
				Help: "Total rows emitted across all converted files.",
			},
		)
	})
}

// CycleCompleted records one finished cycle. Calls before Init are dropped,
// which keeps library code usable from tests without metric registration.
func CycleCompleted(outcome string, d time.Duration) {
	if cyclesTotal == nil {
		return
	}
	cyclesTotal.WithLabelValues(outcome).Inc()
	cycleDurationSeconds.WithLabelValues(outcome).Observe(d.Seconds())
}

// DownloadCompleted records one finished download task.
func DownloadCompleted(status string, bytes int64) {
	if downloadsTotal == nil {
		return
	}
	downloadsTotal.WithLabelValues(status).Inc()
	if bytes > 0 {
		downloadBytesTotal.Add(float64(bytes))
	}
}

// ConversionCompleted records one converted file and its row count.
func ConversionCompleted(rows int) {
	if filesConvertedTotal == nil {
		return
	}
	filesConvertedTotal.Inc()
	rowsConvertedTotal.Add(float64(rows))
}
