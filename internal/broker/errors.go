package broker

import (
	"context"
	"errors"
	"fmt"
)

// Reason classifies a broker failure.
type Reason int

// Failure reasons reported by drivers.
const (
	// ReasonUnknown is any failure the driver could not classify. Permanent.
	ReasonUnknown Reason = iota

	// ReasonServiceTimeout means the broker did not answer in time. Transient.
	ReasonServiceTimeout

	// ReasonServiceUnavailable means the broker is temporarily unable to serve
	// requests (overloaded, restarting, connection dropped). Transient.
	ReasonServiceUnavailable

	// ReasonUnauthorized means the credentials were rejected. Permanent.
	ReasonUnauthorized

	// ReasonEntityNotFound means the channel or its backing storage does not exist. Permanent.
	ReasonEntityNotFound

	// ReasonLockLost means a delivery can no longer be completed because its
	// visibility timeout lapsed or it was already completed. Permanent.
	ReasonLockLost

	// ReasonClosed means the client or broker was already closed. Permanent.
	ReasonClosed
)

var reasonNames = map[Reason]string{
	ReasonUnknown:            "unknown",
	ReasonServiceTimeout:     "service timeout",
	ReasonServiceUnavailable: "service unavailable",
	ReasonUnauthorized:       "unauthorized",
	ReasonEntityNotFound:     "entity not found",
	ReasonLockLost:           "message lock lost",
	ReasonClosed:             "closed",
}

// String returns a human readable name for the reason.
func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// Sentinel errors for the common permanent failures.
var (
	// ErrClosed is returned when using a closed broker, sender, receiver or processor.
	ErrClosed = errors.New("broker client is closed")

	// ErrLockLost is returned by Complete for an unknown or expired handle.
	ErrLockLost = errors.New("message lock lost")

	// ErrInvalidChannel is returned when a channel name is empty.
	ErrInvalidChannel = errors.New("channel name cannot be empty")
)

// Error is a classified broker failure with context about the operation.
type Error struct {
	Op      string // The operation that failed (e.g., "send", "receive", "complete")
	Channel string // The channel the operation targeted
	Reason  Reason // Failure classification
	Err     error  // Original error
}

// Error implements the error interface for Error.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("broker %s on %q failed (%s): %v", e.Op, e.Channel, e.Reason, e.Err)
	}
	return fmt.Sprintf("broker %s on %q failed (%s)", e.Op, e.Channel, e.Reason)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error for the given operation and channel.
func NewError(op, channel string, reason Reason, err error) *Error {
	return &Error{
		Op:      op,
		Channel: channel,
		Reason:  reason,
		Err:     err,
	}
}

// ReasonOf returns the Reason of the first *Error in err's chain.
// A bare context.DeadlineExceeded counts as a service timeout; anything else
// without a classification is ReasonUnknown.
func ReasonOf(err error) Reason {
	var brokerErr *Error
	if errors.As(err, &brokerErr) {
		return brokerErr.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonServiceTimeout
	}
	if errors.Is(err, ErrClosed) {
		return ReasonClosed
	}
	if errors.Is(err, ErrLockLost) {
		return ReasonLockLost
	}
	return ReasonUnknown
}

// IsTransient reports whether err is a broker failure worth retrying:
// a service timeout or temporary unavailability.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	switch ReasonOf(err) {
	case ReasonServiceTimeout, ReasonServiceUnavailable:
		return true
	default:
		return false
	}
}
