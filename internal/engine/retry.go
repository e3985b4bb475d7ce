package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	sqliteBusyCode        = 5
	defaultRetryAttempts  = 5
	defaultInitialBackoff = 10 * time.Millisecond
	defaultMaxBackoff     = 200 * time.Millisecond
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryable(err error) bool {
	return errors.Is(err, ErrConflict) || isSQLiteBusy(err)
}

func (e Engine) retryPolicy() (int, time.Duration, time.Duration) {
	attempts, initial, max := defaultRetryAttempts, defaultInitialBackoff, defaultMaxBackoff
	if e.Config != nil {
		if e.Config.Allocation.RetryAttempts > 0 {
			attempts = e.Config.Allocation.RetryAttempts
		}
		if e.Config.Allocation.RetryInitialBackoff > 0 {
			initial = e.Config.Allocation.RetryInitialBackoff
		}
		if e.Config.Allocation.RetryMaxBackoff >= initial {
			max = e.Config.Allocation.RetryMaxBackoff
		}
	}
	return attempts, initial, max
}

// withRetry runs op until it succeeds, fails with a non-retryable error or
// runs out of attempts. Exhaustion is reported as an unclassified error.
func (e Engine) withRetry(ctx context.Context, name string, op func() error) error {
	attempts, delay, maxDelay := e.retryPolicy()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op()
		if lastErr == nil || !retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		e.metrics().ConflictRetry(name)
		e.logger().Debug("retrying transaction", "op", name, "attempt", attempt, "error", lastErr)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= maxDelay {
			delay = next
		}
	}
	return fmt.Errorf("%s: gave up after %d attempts: %w", name, attempts, lastErr)
}
