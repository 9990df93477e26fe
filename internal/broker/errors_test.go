package broker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "timeout", err: NewError("send", "tasks", ReasonServiceTimeout, nil), want: true},
		{name: "unavailable", err: NewError("receive", "tasks", ReasonServiceUnavailable, errors.New("conn reset")), want: true},
		{name: "wrapped timeout", err: fmt.Errorf("publish: %w", NewError("send", "tasks", ReasonServiceTimeout, nil)), want: true},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: true},
		{name: "unauthorized", err: NewError("send", "tasks", ReasonUnauthorized, nil), want: false},
		{name: "not found", err: NewError("send", "tasks", ReasonEntityNotFound, nil), want: false},
		{name: "lock lost", err: ErrLockLost, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}

func TestErrorMessageAndUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := NewError("send", "tasks", ReasonServiceUnavailable, cause)

	assert.Equal(t, `broker send on "tasks" failed (service unavailable): connection refused`, err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "reason(99)", Reason(99).String())
}
