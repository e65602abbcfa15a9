package retryutil

import (
	"context"
	"time"
)

const (
	defaultAttempts  = 2
	defaultBaseDelay = 500 * time.Millisecond
)

// Policy bounds how often a transient upstream failure is retried before the
// error is handed back to the caller.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
}

func (p Policy) normalized() Policy {
	if p.Attempts <= 0 {
		p.Attempts = defaultAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	return p
}

// Do runs fn up to p.Attempts times, doubling the delay between attempts.
// retryable decides whether an error is worth another attempt; a nil
// retryable retries everything. Context cancellation stops immediately and
// returns the last error seen (or the context error on the first attempt).
func Do(ctx context.Context, p Policy, retryable func(error) bool, fn func(ctx context.Context) error) error {
	p = p.normalized()
	if ctx == nil {
		ctx = context.Background()
	}

	var lastErr error
	delay := p.BaseDelay
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == p.Attempts {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
		delay *= 2
	}
	return lastErr
}
