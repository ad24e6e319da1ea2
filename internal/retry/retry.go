// Package retry implements exponential backoff around calls to stateful external systems.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Policy controls how many times an operation runs and how long to wait in between.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      float64
	// Retryable decides whether an error warrants another attempt. Nil retries everything.
	Retryable func(error) bool
}

// ExhaustedError is returned when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap exposes the last attempt's error.
func (e *ExhaustedError) Unwrap() error { return e.Err }

// Attempts returns the effective attempt count (at least one).
func (p Policy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Delay returns the wait after the given failed attempt (1-based): base * factor^(attempt-1).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}
	factor := p.Factor
	if factor <= 0 {
		factor = 1
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(factor, float64(attempt-1)))
}

// Schedule lists every wait that happens when all attempts fail.
func (p Policy) Schedule() []time.Duration {
	waits := make([]time.Duration, 0, p.Attempts()-1)
	for attempt := 1; attempt < p.Attempts(); attempt++ {
		waits = append(waits, p.Delay(attempt))
	}
	return waits
}

func (p Policy) retryable(err error) bool {
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

// Do runs fn until it succeeds, returns a non-retryable error, or attempts run out.
// Exhaustion yields an *ExhaustedError wrapping the last error.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	var lastErr error
	attempts := p.Attempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if !p.retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, p.Delay(attempt)); err != nil {
			return fmt.Errorf("retry wait canceled: %w", err)
		}
	}
	return &ExhaustedError{Attempts: attempts, Err: lastErr}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
