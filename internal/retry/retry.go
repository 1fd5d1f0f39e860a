// Package retry provides exponential backoff for calls to flaky
// collaborators.
package retry

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidMaxAttempts is returned when a policy has no attempts to spend.
var ErrInvalidMaxAttempts = errors.New("retry: max attempts must be > 0")

// Policy describes how an operation is retried. The zero value is unusable;
// use Default or fill every field.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration // doubles on each retry
	MaxDelay    time.Duration // cap for the computed delay, 0 means uncapped
	CallTimeout time.Duration // per-attempt deadline, 0 means none
}

// permanentError marks a failure that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Do returns it after the first attempt instead of
// spending the remaining budget on it. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Default matches the pacing used for external AI calls: three attempts,
// one second base delay, capped at eight seconds.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    8 * time.Second,
		CallTimeout: 60 * time.Second,
	}
}

// Do runs operation until it succeeds, the attempts are exhausted, or ctx is
// done. The last attempt's error is returned when all attempts fail.
func (p Policy) Do(ctx context.Context, operation func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	var lastErr error
	delay := p.BaseDelay
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = p.attempt(ctx, operation)
		if lastErr == nil {
			return nil
		}
		if isPermanent(lastErr) {
			return lastErr
		}

		if attempt == p.MaxAttempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return lastErr
}

func (p Policy) attempt(ctx context.Context, operation func(ctx context.Context) error) error {
	if p.CallTimeout <= 0 {
		return operation(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.CallTimeout)
	defer cancel()
	return operation(attemptCtx)
}
