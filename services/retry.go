package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ai-trader/models"
	"ai-trader/observability"
)

// RetryConfig bounds the backoff of exchange reads
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig waits 100ms, 200ms, 400ms between the four attempts
var DefaultRetryConfig = RetryConfig{
	MaxRetries:     3,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     5 * time.Second,
}

// WithRetry retries fn with exponential backoff. Only idempotent reads go through it;
// order submission is never retried. Cancellation and open breakers stop the loop early.
func WithRetry(ctx context.Context, config RetryConfig, fn func() error) error {
	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
			case <-time.After(backoff):
			}

			backoff *= 2
			if backoff > config.MaxBackoff {
				backoff = config.MaxBackoff
			}
		}

		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err
		if !isRetryable(err) {
			return err
		}
		if attempt < config.MaxRetries {
			observability.Warn("retry attempt failed",
				"attempt", attempt+1,
				"max_retries", config.MaxRetries,
				"error", err)
		}
	}

	return fmt.Errorf("failed after %d retries: %w", config.MaxRetries, lastErr)
}

// isRetryable is false for errors another attempt cannot fix: the caller gave up,
// the breaker is open, or the exchange rejected the data itself.
func isRetryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, models.ErrData):
		return false
	}
	return true
}
