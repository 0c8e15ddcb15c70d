package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aperez/iattc-monitor/internal/monitor"
)

// CycleRunner executes one monitoring cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context, force bool) (monitor.RunSummary, error)
}

// Scheduler drives the runner on a fixed interval, isolating cycle failures
// so one bad run never stops future runs.
type Scheduler struct {
	runner   CycleRunner
	interval time.Duration
	logger   *zap.Logger

	mu      sync.RWMutex
	last    monitor.RunSummary
	hasLast bool
}

// NewScheduler constructs a Scheduler.
func NewScheduler(runner CycleRunner, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger,
	}
}

// Run executes one cycle immediately, then one per interval until the
// context finishes.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler starting", zap.Duration("interval", s.interval))
	s.cycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", zap.Error(ctx.Err()))
			return
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

// LastRun returns the most recent cycle summary, if any cycle has finished.
func (s *Scheduler) LastRun() (monitor.RunSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.hasLast
}

// cycle runs the runner once, containing panics and errors at the cycle
// boundary.
func (s *Scheduler) cycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("cycle panicked", zap.Any("panic", rec))
		}
	}()

	summary, err := s.runner.RunCycle(ctx, false)
	if err != nil {
		s.logger.Error("cycle failed, will retry next interval", zap.Error(err))
	}

	s.mu.Lock()
	s.last = summary
	s.hasLast = true
	s.mu.Unlock()
}
