package download

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"
)

// RetryPolicy decides whether a failed attempt is retried and how long to
// wait before the next one.
type RetryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewRetryPolicy builds a jittered exponential backoff policy. A task is
// attempted at most maxRetries+1 times.
func NewRetryPolicy(maxRetries int, baseDelay, maxDelay time.Duration) *RetryPolicy {
	if baseDelay <= 0 {
		baseDelay = 250 * time.Millisecond
	}
	if maxDelay < baseDelay {
		maxDelay = 5 * time.Second
	}
	return &RetryPolicy{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}
}

// ShouldRetry decides whether the error is retryable after the given
// zero-based attempt.
func (p *RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxRetries {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// Backoff returns the wait duration before the next attempt.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := p.randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

// Wait sleeps for the backoff of the given attempt, returning early if the
// context finishes first.
func (p *RetryPolicy) Wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(p.Backoff(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *RetryPolicy) randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
