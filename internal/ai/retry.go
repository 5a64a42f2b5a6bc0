package ai

import (
	"context"
	"time"

	"github.com/myrjola/lorebook/internal/errors"
)

// RetryPolicy is an explicit retry policy value applied uniformly by all
// model-calling components instead of ad hoc error branching.
type RetryPolicy struct {
	// MaxAttempts bounds the total number of tries including the first one.
	MaxAttempts int
	// BaseDelay is the wait before the first retry. Doubles on every attempt.
	BaseDelay time.Duration
	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration
	// Retryable decides which errors are worth another attempt. A nil
	// predicate retries everything.
	Retryable func(error) bool
}

// DefaultRetryPolicy retries transient model errors a few times with
// exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Retryable:   IsTransient,
	}
}

// Do runs fn until it succeeds, a non-retryable error occurs, the attempts
// are exhausted, or ctx is cancelled. The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	delay := p.BaseDelay
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt >= p.MaxAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "retry cancelled")
		case <-time.After(delay):
		}
		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
}
