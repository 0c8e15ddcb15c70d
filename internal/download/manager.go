// Package download retrieves discovered archives concurrently with retry,
// streaming each response to disk and validating the result before it is
// handed to extraction.
package download

import (
	"archive/zip"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aperez/iattc-monitor/internal/monitor"
)

const copyBufferSize = 32 * 1024

var invalidFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Config controls Manager behavior.
type Config struct {
	Dir         string
	Concurrency int
	UserAgent   string
	Timeout     time.Duration
}

// Task tracks one download through its lifetime. Tasks are discarded after
// the batch completes; outcomes live in the returned results.
type Task struct {
	URL     string
	Dest    string
	Attempt int
	Status  monitor.DownloadStatus
}

// Manager downloads archives with a bounded worker pool.
type Manager struct {
	cfg    Config
	client *http.Client
	policy *RetryPolicy
	logger *zap.Logger
}

// NewManager constructs a Manager.
func NewManager(cfg Config, policy *RetryPolicy, logger *zap.Logger) *Manager {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	client := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: cfg.Timeout,
			}).DialContext,
			MaxIdleConns:          16,
			IdleConnTimeout:       30 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: cfg.Timeout,
			ForceAttemptHTTP2:     true,
		},
	}
	return &Manager{
		cfg:    cfg,
		client: client,
		policy: policy,
		logger: logger,
	}
}

// FetchAll downloads every URL and returns one result per unique URL, in
// input order. A failed download never aborts the batch.
func (m *Manager) FetchAll(ctx context.Context, urls []string) []monitor.DownloadResult {
	tasks := m.buildTasks(urls)
	if len(tasks) == 0 {
		return nil
	}

	taskCh := make(chan *Task)
	resultCh := make(chan monitor.DownloadResult, len(tasks))

	workers := m.cfg.Concurrency
	if workers > len(tasks) {
		workers = len(tasks)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range taskCh {
				resultCh <- m.runTask(ctx, task)
			}
		}()
	}

	for _, task := range tasks {
		taskCh <- task
	}
	close(taskCh)
	wg.Wait()
	close(resultCh)

	byURL := make(map[string]monitor.DownloadResult, len(tasks))
	for res := range resultCh {
		byURL[res.URL] = res
	}
	results := make([]monitor.DownloadResult, 0, len(tasks))
	for _, task := range tasks {
		results = append(results, byURL[task.URL])
	}
	return results
}

// buildTasks deduplicates URLs and assigns collision-free destination paths,
// so no two tasks ever write to the same file concurrently.
func (m *Manager) buildTasks(urls []string) []*Task {
	var tasks []*Task
	seenURL := make(map[string]bool)
	seenDest := make(map[string]bool)
	for _, raw := range urls {
		if seenURL[raw] {
			continue
		}
		seenURL[raw] = true

		name := archiveFilename(raw)
		if seenDest[name] {
			ext := filepath.Ext(name)
			name = strings.TrimSuffix(name, ext) + "_" + hashURL(raw)[:8] + ext
		}
		seenDest[name] = true

		tasks = append(tasks, &Task{
			URL:    raw,
			Dest:   filepath.Join(m.cfg.Dir, name),
			Status: monitor.DownloadPending,
		})
	}
	return tasks
}

func (m *Manager) runTask(ctx context.Context, task *Task) monitor.DownloadResult {
	task.Status = monitor.DownloadInProgress
	var lastErr error
	for attempt := 0; ; attempt++ {
		task.Attempt = attempt
		bytes, err := m.downloadOnce(ctx, task.URL, task.Dest)
		if err == nil {
			task.Status = monitor.DownloadSucceeded
			m.logger.Info("download succeeded",
				zap.String("url", task.URL),
				zap.String("path", task.Dest),
				zap.Int64("bytes", bytes),
				zap.Int("attempts", attempt+1),
			)
			return monitor.DownloadResult{
				URL:      task.URL,
				Path:     task.Dest,
				Status:   monitor.DownloadSucceeded,
				Attempts: attempt + 1,
				Bytes:    bytes,
			}
		}
		lastErr = err
		m.logger.Warn("download attempt failed",
			zap.String("url", task.URL),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		if !m.policy.ShouldRetry(err, attempt) {
			task.Status = monitor.DownloadFailed
			return monitor.DownloadResult{
				URL:      task.URL,
				Status:   monitor.DownloadFailed,
				Attempts: attempt + 1,
				Err:      lastErr,
			}
		}
		if err := m.policy.Wait(ctx, attempt); err != nil {
			task.Status = monitor.DownloadFailed
			return monitor.DownloadResult{
				URL:      task.URL,
				Status:   monitor.DownloadFailed,
				Attempts: attempt + 1,
				Err:      err,
			}
		}
	}
}

// downloadOnce performs a single attempt: skip if an existing file is still
// valid, otherwise stream to a staging file, validate, and rename.
func (m *Manager) downloadOnce(ctx context.Context, rawURL, dest string) (int64, error) {
	expected := m.remoteSize(ctx, rawURL)

	if size, ok := m.existingValid(dest, expected); ok {
		m.logger.Debug("file already downloaded and valid", zap.String("path", dest))
		return size, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", m.cfg.UserAgent)

	resp, err := m.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", monitor.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("%w: status %d", monitor.ErrNetwork, resp.StatusCode)
	}
	if expected <= 0 {
		expected = resp.ContentLength
	}

	part := dest + ".part"
	written, err := m.streamToFile(resp.Body, part, expected)
	if err != nil {
		removeQuietly(part)
		return 0, fmt.Errorf("%w: %v", monitor.ErrNetwork, err)
	}

	if expected > 0 && written != expected {
		removeQuietly(part)
		return 0, fmt.Errorf("%w: got %d bytes, expected %d", monitor.ErrValidation, written, expected)
	}
	if err := validateZip(part); err != nil {
		removeQuietly(part)
		return 0, err
	}
	if err := os.Rename(part, dest); err != nil {
		removeQuietly(part)
		return 0, fmt.Errorf("finalize download %s: %w", dest, err)
	}
	return written, nil
}

func (m *Manager) streamToFile(r io.Reader, path string, total int64) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create staging file: %w", err)
	}

	buf := make([]byte, copyBufferSize)
	var written int64
	var nextProgress int64 = total / 4
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			if _, writeErr := f.Write(buf[:n]); writeErr != nil {
				_ = f.Close()
				return written, fmt.Errorf("write staging file: %w", writeErr)
			}
			written += int64(n)
			if total > 0 && written >= nextProgress {
				m.logger.Debug("download progress",
					zap.String("path", path),
					zap.Int64("written", written),
					zap.Int64("total", total),
				)
				nextProgress += total / 4
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = f.Close()
			return written, fmt.Errorf("read response body: %w", readErr)
		}
	}
	if err := f.Close(); err != nil {
		return written, fmt.Errorf("close staging file: %w", err)
	}
	return written, nil
}

// remoteSize asks for Content-Length via HEAD. Best effort: servers that
// reject HEAD return -1, disabling the size checks.
func (m *Manager) remoteSize(ctx context.Context, rawURL string) int64 {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return -1
	}
	req.Header.Set("User-Agent", m.cfg.UserAgent)
	resp, err := m.client.Do(req)
	if err != nil {
		return -1
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return -1
	}
	return resp.ContentLength
}

// existingValid reports whether dest already holds a structurally valid
// archive of the expected size, making re-runs idempotent.
func (m *Manager) existingValid(dest string, expected int64) (int64, bool) {
	info, err := os.Stat(dest)
	if err != nil {
		return 0, false
	}
	if expected > 0 && info.Size() != expected {
		return 0, false
	}
	if err := validateZip(dest); err != nil {
		return 0, false
	}
	return info.Size(), true
}

func validateZip(path string) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("%w: %v", monitor.ErrValidation, err)
	}
	return r.Close()
}

func removeQuietly(path string) {
	_ = os.Remove(path)
}

func archiveFilename(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return hashURL(rawURL) + ".zip"
	}
	name := path.Base(u.Path)
	name = invalidFilenameChars.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == "/" {
		return hashURL(rawURL) + ".zip"
	}
	return name
}

func hashURL(raw string) string {
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}
