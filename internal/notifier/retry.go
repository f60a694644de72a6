package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Backoff doubles the wait after every failed attempt, starting at Base and
// capped at Max.
type Backoff struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

// DefaultBackoff is used for cycle reports: 1s, 2s, 4s between four attempts.
var DefaultBackoff = Backoff{Attempts: 4, Base: time.Second, Max: 30 * time.Second}

func (b Backoff) delay(attempt int) time.Duration {
	d := b.Base << uint(attempt)
	if d <= 0 || (b.Max > 0 && d > b.Max) {
		d = b.Max
	}
	return d
}

// permanent marks errors that a retry cannot fix.
type permanent interface{ Permanent() bool }

// Do calls fn until it succeeds, returns a permanent error, the attempts run
// out or ctx ends. onRetry is told about every failure that will be retried.
func (b Backoff) Do(ctx context.Context, fn func() error, onRetry func(attempt int, wait time.Duration, err error)) error {
	attempts := b.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		var p permanent
		if errors.As(err, &p) && p.Permanent() {
			return err
		}
		if i == attempts-1 {
			break
		}

		wait := b.delay(i)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > wait {
			wait = apiErr.RetryAfter
		}
		if onRetry != nil {
			onRetry(i+1, wait, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}
