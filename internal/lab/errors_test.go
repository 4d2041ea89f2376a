package lab

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeoutErrorMessage(t *testing.T) {
	err := &TimeoutError{
		What:      `status of "Object Detection" to be RUNNING`,
		Timeout:   time.Minute,
		LastValue: "STARTING",
	}

	assert.Equal(t, `timed out after 1m0s waiting for status of "Object Detection" to be RUNNING (last observed: STARTING)`, err.Error())
}

func TestTimeoutErrorUnwrapsLastError(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("health check: %w", &TimeoutError{What: "service", Timeout: time.Second, LastErr: cause})

	assert.True(t, IsTimeout(err))
	assert.ErrorIs(t, err, cause)
}

func TestIsFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "timeout", err: &TimeoutError{What: "x"}, want: true},
		{name: "assertion", err: fmt.Errorf("wrapped: %w", &AssertionError{Field: "model name"}), want: true},
		{name: "not found", err: &NotFoundError{Kind: "recipe", Name: "Chatbot"}, want: true},
		{name: "missing service details", err: ErrNoServiceDetails, want: true},
		{name: "transport", err: errors.New("bridge unreachable"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsFailure(tt.err))
		})
	}
}

func TestNotFoundErrorMessage(t *testing.T) {
	err := &NotFoundError{Kind: "recipe", Name: "Chatbot"}
	assert.Equal(t, `not found: recipe "Chatbot"`, err.Error())
	assert.True(t, IsNotFound(err))
	assert.False(t, IsAssertion(err))
}
