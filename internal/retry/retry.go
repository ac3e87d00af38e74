// Package retry implements a small bounded-retry policy with exponential
// backoff for calls to external services.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy bounds how often an operation is retried and how long to wait
// between attempts. The backoff doubles after each failure, starting at
// BaseBackoff and capped at MaxBackoff.
type Policy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// NewPolicy builds a policy from config values, clamping nonsense inputs.
func NewPolicy(maxAttempts int, baseBackoff, maxBackoff time.Duration) Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseBackoff <= 0 {
		baseBackoff = 100 * time.Millisecond
	}
	if maxBackoff < baseBackoff {
		maxBackoff = baseBackoff
	}
	return Policy{MaxAttempts: maxAttempts, BaseBackoff: baseBackoff, MaxBackoff: maxBackoff}
}

// Do runs op until it succeeds, fails permanently, exhausts MaxAttempts, or
// the context is cancelled. The last error is returned unwrapped from any
// permanent marker.
func (p Policy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := p.BaseBackoff

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
				backoff = p.MaxBackoff
			}
		}

		err = op()
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying, typically a client-side mistake
// such as a rejected request. Do stops immediately and returns the original
// error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err carries the permanent marker.
func IsPermanent(err error) bool {
	var perm *permanentError
	return errors.As(err, &perm)
}
