package dispatch

import "errors"

var (
	// ErrDecode wraps payloads that could not be decoded into the expected type.
	ErrDecode = errors.New("failed to decode message")

	// ErrInvalidBatchSize is returned when ReceiveBatch is asked for fewer than one message.
	ErrInvalidBatchSize = errors.New("batch size must be positive")

	// ErrConsumerRunning is returned when Start is called on a running PushConsumer.
	ErrConsumerRunning = errors.New("push consumer is already running")

	// ErrNilHandler is returned when Start is called without a handler.
	ErrNilHandler = errors.New("handler cannot be nil")

	// ErrInvalidChannel is returned when a component is built without a channel name.
	ErrInvalidChannel = errors.New("channel name cannot be empty")
)
