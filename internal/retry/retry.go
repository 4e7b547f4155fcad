package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Strategy selects how the wait between attempts evolves.
type Strategy int

const (
	// Fixed waits BaseDelay between every attempt.
	Fixed Strategy = iota
	// Exponential doubles the wait per attempt, capped at MaxDelay when set.
	Exponential
)

func (s Strategy) String() string {
	switch s {
	case Exponential:
		return "exponential"
	default:
		return "fixed"
	}
}

// Policy describes how often and how patiently an operation is retried.
type Policy struct {
	MaxAttempts int
	Strategy    Strategy
	BaseDelay   time.Duration
	MaxDelay    time.Duration // caps exponential growth; 0 means uncapped
}

// Delay returns the wait that follows the given attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if p.Strategy != Exponential {
		return p.BaseDelay
	}
	wait := p.BaseDelay
	for i := 1; i < attempt; i++ {
		wait *= 2
		if p.MaxDelay > 0 && wait > p.MaxDelay {
			return p.MaxDelay
		}
	}
	return wait
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying; Do surfaces it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs fn until it succeeds, a permanent error surfaces, the attempt
// budget is spent, or ctx is cancelled. fn receives the 1-based attempt
// number. The exhaustion error wraps fn's last error.
func Do(ctx context.Context, p Policy, fn func(attempt int) error) error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry: MaxAttempts must be >= 1, got %d", p.MaxAttempts)
	}

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = fn(attempt)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt == p.MaxAttempts {
			break
		}

		timer := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("after %d attempts: %w", p.MaxAttempts, err)
}
