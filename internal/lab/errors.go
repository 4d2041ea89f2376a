package lab

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoServiceDetails is returned by phases that need the service details
// view produced by CreateService when that phase did not complete.
var ErrNoServiceDetails = errors.New("no service details view: service creation did not complete")

// TimeoutError reports a polled condition that never held before its deadline.
type TimeoutError struct {
	// What is a short description of the awaited condition.
	What    string
	Timeout time.Duration
	// LastValue is the last observed value, if the poll tracked one.
	LastValue interface{}
	// LastErr is the last error returned by the predicate, if any.
	LastErr error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timed out after %v waiting for %s", e.Timeout, e.What)
	if e.LastValue != nil {
		msg += fmt.Sprintf(" (last observed: %v)", e.LastValue)
	}
	if e.LastErr != nil {
		msg += fmt.Sprintf(" (last error: %v)", e.LastErr)
	}
	return msg
}

func (e *TimeoutError) Unwrap() error {
	return e.LastErr
}

// AssertionError reports a one-shot comparison of observed and expected UI state.
type AssertionError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %q, got %q", e.Field, e.Expected, e.Actual)
}

// NotFoundError reports a catalog entry or running app that could not be located.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s %q", e.Kind, e.Name)
}

// IsTimeout reports whether err is or wraps a *TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// IsAssertion reports whether err is or wraps an *AssertionError.
func IsAssertion(err error) bool {
	var ae *AssertionError
	return errors.As(err, &ae)
}

// IsNotFound reports whether err is or wraps a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsFailure reports whether err is one of the expected test failure kinds,
// as opposed to a driver or transport error.
func IsFailure(err error) bool {
	return IsTimeout(err) || IsAssertion(err) || IsNotFound(err) || errors.Is(err, ErrNoServiceDetails)
}
