package crawler

import (
	"context"
	"math"
	"time"
)

// RetryPolicy bounds repeated attempts of one operation with exponential
// backoff. MaxAttempts == 0 means unbounded: the engine uses an unbounded
// policy for page-level fetches (a missed catalog page silently drops every
// item on it) and a capped policy for per-item detail fetches.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// PageRetryPolicy retries catalog and rating pages forever.
func PageRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 0,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
	}
}

// ItemRetryPolicy caps detail fetches at ten attempts per game, after which
// the item is abandoned for the run.
func ItemRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 10,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// Exhausted reports whether attempt (1-based, counting attempts already
// made) has consumed the policy's budget.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}

// Backoff returns the wait duration before the next attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	delay := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

// Wait sleeps for the backoff of the given attempt, returning early with
// the context error on cancellation.
func (p RetryPolicy) Wait(ctx context.Context, attempt int) error {
	delay := p.Backoff(attempt)
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
