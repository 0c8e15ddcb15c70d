// Package detector decides whether the monitored page changed since the
// last observed snapshot.
package detector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/aperez/iattc-monitor/internal/monitor"
)

// Config controls the page fetch performed by the detector.
type Config struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
}

// Detector fetches the monitored page and compares its content hash against
// a previous snapshot. It performs no writes; the caller decides whether to
// persist the returned snapshot.
type Detector struct {
	cfg           Config
	baseCollector *colly.Collector
	hasher        monitor.Hasher
	clock         monitor.Clock
	logger        *zap.Logger
}

// New constructs a configured Detector.
func New(cfg Config, hasher monitor.Hasher, clock monitor.Clock, logger *zap.Logger) (*Detector, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("detector: url is required")
	}
	base := colly.NewCollector(colly.UserAgent(cfg.UserAgent))
	base.AllowURLRevisit = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          16,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(cfg.Timeout)

	return &Detector{
		cfg:           cfg,
		baseCollector: base,
		hasher:        hasher,
		clock:         clock,
		logger:        logger,
	}, nil
}

// Detect fetches the page, hashes the raw body, and reports whether the hash
// differs from prev. The fetched body is returned so link discovery can reuse
// it without a second request.
func (d *Detector) Detect(ctx context.Context, prev monitor.Snapshot) (bool, monitor.Snapshot, []byte, error) {
	body, err := d.fetch(ctx)
	if err != nil {
		return false, monitor.Snapshot{}, nil, fmt.Errorf("%w: %v", monitor.ErrNetwork, err)
	}

	hash, err := d.hasher.Hash(body)
	if err != nil {
		return false, monitor.Snapshot{}, nil, fmt.Errorf("hash page body: %w", err)
	}

	cur := monitor.Snapshot{ContentHash: hash, LastChecked: d.clock.Now()}
	changed := prev.IsZero() || prev.ContentHash != cur.ContentHash
	d.logger.Debug("change detection complete",
		zap.String("url", d.cfg.URL),
		zap.String("hash", hash),
		zap.Bool("changed", changed),
	)
	return changed, cur, body, nil
}

func (d *Detector) fetch(ctx context.Context) ([]byte, error) {
	collector := d.baseCollector.Clone()
	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() {
			resultCh <- res
		})
	}

	collector.OnResponse(func(r *colly.Response) {
		send(fetchResult{body: append([]byte{}, r.Body...)})
	})
	collector.OnError(func(r *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		if r != nil && r.StatusCode != 0 {
			err = fmt.Errorf("status %d: %w", r.StatusCode, err)
		}
		send(fetchResult{err: err})
	})

	if err := collector.Visit(d.cfg.URL); err != nil {
		return nil, err
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return res.body, res.err
	default:
		return nil, errors.New("fetch produced no result")
	}
}

type fetchResult struct {
	body []byte
	err  error
}
