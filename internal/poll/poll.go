// Package poll re-evaluates a condition at a fixed interval until it holds or
// a deadline elapses. Every wait in the lifecycle runner goes through here.
package poll

import (
	"context"
	"fmt"
	"time"

	"labrunner/internal/lab"
	"labrunner/pkg/logging"

	"k8s.io/apimachinery/pkg/util/wait"
)

// ConditionFunc reports whether the awaited state has been reached.
// Errors are treated as "not yet" and retried until the deadline.
type ConditionFunc func(ctx context.Context) (bool, error)

// AwaitCondition checks fn immediately and then every interval until it
// returns true. When timeout elapses first it returns a *lab.TimeoutError.
// Cancellation of ctx itself is returned unchanged.
func AwaitCondition(ctx context.Context, what string, interval, timeout time.Duration, fn ConditionFunc) error {
	if err := validate(interval, timeout); err != nil {
		return err
	}

	var lastErr error
	err := wait.PollUntilContextTimeout(ctx, interval, timeout, true, func(ctx context.Context) (bool, error) {
		ok, err := fn(ctx)
		if err != nil {
			lastErr = err
			logging.Debug("Poll", "%s: %v", what, err)
			return false, nil
		}
		lastErr = nil
		return ok, nil
	})
	return translate(ctx, err, &lab.TimeoutError{What: what, Timeout: timeout, LastErr: lastErr})
}

// AwaitValue polls get until accept returns true for the observed value and
// returns that value. On timeout the *lab.TimeoutError carries the last
// value observed so the caller can report what the state actually was.
func AwaitValue[T any](ctx context.Context, what string, interval, timeout time.Duration, get func(ctx context.Context) (T, error), accept func(T) bool) (T, error) {
	var (
		last     T
		observed bool
		lastErr  error
	)
	if err := validate(interval, timeout); err != nil {
		return last, err
	}

	err := wait.PollUntilContextTimeout(ctx, interval, timeout, true, func(ctx context.Context) (bool, error) {
		v, err := get(ctx)
		if err != nil {
			lastErr = err
			logging.Debug("Poll", "%s: %v", what, err)
			return false, nil
		}
		last, observed, lastErr = v, true, nil
		return accept(v), nil
	})

	te := &lab.TimeoutError{What: what, Timeout: timeout, LastErr: lastErr}
	if observed {
		te.LastValue = last
	}
	return last, translate(ctx, err, te)
}

// Equals returns an accept func matching a single expected value.
func Equals[T comparable](want T) func(T) bool {
	return func(got T) bool { return got == want }
}

func validate(interval, timeout time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", interval)
	}
	if timeout <= 0 {
		return fmt.Errorf("poll timeout must be positive, got %v", timeout)
	}
	return nil
}

func translate(parent context.Context, err error, timeoutErr *lab.TimeoutError) error {
	if err == nil {
		return nil
	}
	if parent.Err() != nil {
		return parent.Err()
	}
	if wait.Interrupted(err) {
		return timeoutErr
	}
	return err
}
