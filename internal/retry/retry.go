// Package retry runs an operation with bounded exponential backoff.
package retry

import (
	"context"
	"fmt"
	"time"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Policy configures a retry loop. The wait doubles after every failed attempt
// and is capped at MaxWait when MaxWait > 0.
type Policy struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Sleep       SleepFunc
	// Retryable reports whether err is worth another attempt. nil retries everything.
	Retryable func(err error) bool
	// OnRetry is called before each wait.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts failed: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do calls fn until it succeeds, returns a non-retryable error, or attempts run out.
// A non-retryable error is returned unchanged.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Sleep == nil {
		p.Sleep = Sleep
	}

	wait := p.InitialWait
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		lastErr = err

		if attempt == p.MaxAttempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, err)
		}
		if serr := p.Sleep(ctx, wait); serr != nil {
			return serr
		}
		wait *= 2
		if p.MaxWait > 0 && wait > p.MaxWait {
			wait = p.MaxWait
		}
	}
	return &ExhaustedError{Attempts: p.MaxAttempts, Err: lastErr}
}
