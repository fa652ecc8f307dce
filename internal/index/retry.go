package index

import (
	"context"
	"time"
)

// upsertRetry bounds retries on store upserts for transient failures.
// Delays stay short and capped so a flaky store degrades sync throughput
// predictably instead of stalling it.
type upsertRetry struct {
	maxRetries   int
	initialDelay time.Duration
	maxDelay     time.Duration
}

func defaultUpsertRetry() upsertRetry {
	return upsertRetry{
		maxRetries:   2,
		initialDelay: 100 * time.Millisecond,
		maxDelay:     800 * time.Millisecond,
	}
}

// do runs fn with capped exponential backoff between attempts, giving up
// on context cancellation or once maxRetries retries are spent. The last
// attempt's error is returned.
func (r upsertRetry) do(ctx context.Context, fn func() error) error {
	delay := r.initialDelay
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt >= r.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > r.maxDelay {
			delay = r.maxDelay
		}
	}
	return lastErr
}
