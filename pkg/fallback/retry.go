package fallback

import (
	"context"
	"time"
)

// Backoff configures Retry. The delay after attempt n is n * BaseDelay.
type Backoff struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultBackoff is three attempts with 500ms linear steps.
var DefaultBackoff = Backoff{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond}

// Delay returns the wait after the given 1-based attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	return time.Duration(attempt) * b.BaseDelay
}

// Retry calls fn until it succeeds, the attempts are used up or ctx is done.
// fn receives the 1-based attempt number. The last error is returned.
func Retry(ctx context.Context, b Backoff, fn func(ctx context.Context, attempt int) error) error {
	maxAttempts := b.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(ctx, attempt); err == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}

		timer := time.NewTimer(b.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
