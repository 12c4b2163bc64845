// Package retry implements the SDK's retry combinator and scoped cleanup
// guard (spec.md §4.2, C2). It underlies the download engine's resumable
// transfers and the registry's remote reads, the way the teacher wraps
// flaky HTTP calls in its pipeline clients.
package retry

import (
	"context"
	"time"

	"github.com/localmind-ai/ondevice-sdk/internal/aierr"
)

// Config controls the number of attempts and the exponential backoff schedule.
type Config struct {
	MaxAttempts       int
	InitialDelayMs    int64
	MaxDelayMs        int64
	BackoffMultiplier float64
}

// DefaultConfig returns the SDK-wide default retry schedule: 1s, 2s, 4s,
// 8s, 16s, then capped at 30s (spec.md §4.2).
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       6,
		InitialDelayMs:    1000,
		MaxDelayMs:        30000,
		BackoffMultiplier: 2.0,
	}
}

// DownloadConfig returns the download engine's default of 3 attempts.
func DownloadConfig() Config {
	c := DefaultConfig()
	c.MaxAttempts = 3
	return c
}

// DelayForAttempt computes the delay before the given 0-indexed attempt's
// retry, per spec.md §4.2: delay(n) = min(initial * multiplier^(n-1), max).
// Attempt 0 is the first call and incurs no prior delay.
func (c Config) DelayForAttempt(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := float64(c.InitialDelayMs)
	for i := 1; i < attempt; i++ {
		delay *= c.BackoffMultiplier
	}
	if delay > float64(c.MaxDelayMs) {
		delay = float64(c.MaxDelayMs)
	}
	return time.Duration(delay) * time.Millisecond
}

// OnRetryHook is invoked before each retry sleep, with the attempt number
// that just failed and the error that triggered the retry.
type OnRetryHook func(attempt int, err error)

// WithRetry invokes op; on error, if the error is retryable and attempts
// remain, it sleeps the computed backoff and retries; otherwise it returns
// the last error. It respects ctx cancellation between attempts.
func WithRetry[T any](ctx context.Context, cfg Config, op func() (T, error), onRetry OnRetryHook) (T, error) {
	var zero T
	var lastErr error

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := cfg.DelayForAttempt(attempt)
			if onRetry != nil {
				onRetry(attempt, lastErr)
			}
			select {
			case <-ctx.Done():
				return zero, aierr.New(aierr.OperationCancelled, "retry wait cancelled", ctx.Err().Error())
			case <-time.After(delay):
			}
		}

		result, err := op()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !aierr.Retryable(aierr.CodeOf(err)) {
			return zero, err
		}
	}

	return zero, lastErr
}
