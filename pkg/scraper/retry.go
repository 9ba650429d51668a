package scraper

import (
	"context"
	"time"
)

// RetryPolicy is the single retry strategy used by the Fetcher.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Retryable   func(err error) bool
}

// ExponentialBackoff waits base, 2*base, 4*base, ... after the 1st, 2nd, 3rd failed attempt.
func ExponentialBackoff(base time.Duration) func(attempt int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		return base << (attempt - 1)
	}
}

func DefaultRetryPolicy(maxAttempts int, backoffBase time.Duration) RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		Backoff:     ExponentialBackoff(backoffBase),
		Retryable:   IsRetryable,
	}
}

// Do calls fn until it succeeds, returns a non-retryable error, or the attempt budget is spent.
// The last error is returned as is. A cancelled ctx during backoff also returns the last error.
func (p RetryPolicy) Do(ctx context.Context, sleep SleepFunc, fn func(attempt int) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		if attempt >= p.MaxAttempts || !p.Retryable(err) {
			return err
		}
		if sleep(ctx, p.Backoff(attempt)) != nil {
			return err
		}
	}
}
