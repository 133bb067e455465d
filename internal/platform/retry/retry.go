// Package retry implements a bounded retry policy with exponential backoff
// for provider calls. Only transient failures are retried; callers mark
// business errors with Permanent to stop the loop immediately.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy is a reusable bounded-retry configuration.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicy matches the provider integration contract: 3 attempts with
// exponential backoff starting at one second.
var DefaultPolicy = Policy{MaxAttempts: 3, BaseDelay: time.Second}

// None performs a single attempt. Used for non-idempotent operations.
var None = Policy{MaxAttempts: 1}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps an error so the policy surfaces it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs op until it succeeds, returns a permanent error, the attempts are
// exhausted, or the context is done. The delay doubles after every failed
// attempt: base, 2*base, 4*base, ...
func (p Policy) Do(ctx context.Context, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	delay := p.BaseDelay
	for attempt := 1; attempt <= attempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastErr
}
