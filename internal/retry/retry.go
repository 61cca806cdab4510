// Package retry retries transient RPC failures with exponential
// backoff and jitter.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// PermanentError marks an error Do must not retry, such as a contract
// revert: the call fails the same way no matter how often it runs.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so Do stops immediately.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// Do runs fn up to maxAttempts times. Failed attempts are separated by
// baseDelay, doubled each round with jitter so a fleet of clients does
// not hammer a recovering RPC node in lockstep. It stops early on
// success, on a PermanentError, or when ctx is done.
func Do(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	return Notify(ctx, maxAttempts, baseDelay, nil, fn)
}

// Notify is Do with a callback invoked before each backoff sleep,
// giving the caller a place to log the failed attempt.
func Notify(ctx context.Context, maxAttempts int, baseDelay time.Duration, onRetry func(attempt int, err error), fn func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	delay := baseDelay
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}

		var pe *PermanentError
		if errors.As(err, &pe) {
			return pe.Err
		}
		if attempt == maxAttempts {
			return err
		}

		if onRetry != nil {
			onRetry(attempt, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered(delay)):
		}
		delay *= 2
	}
}

// jittered spreads a delay across roughly +-25% of its nominal value.
func jittered(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	window := int64(d) / 2
	return time.Duration(int64(d) - window/2 + rand.Int64N(window+1))
}
