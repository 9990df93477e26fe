package broker

import (
	"context"
	"time"
)

// ContentTypeJSON is the content type of every envelope the dispatch core writes.
const ContentTypeJSON = "application/json"

// Handle identifies one delivery of a received message. It is only meaningful
// to the Receiver that produced it and is passed back unchanged to Complete.
type Handle string

// Message is the envelope published to a channel.
type Message struct {
	// ID is a producer-assigned unique identifier
	ID string

	// ContentType describes the encoding of Body
	ContentType string

	// Body is the opaque payload
	Body []byte
}

// ReceivedMessage is a message delivered by a Receiver.
type ReceivedMessage struct {
	// Handle is used to acknowledge this delivery
	Handle Handle

	// ID is the producer-assigned message identifier
	ID string

	// Body is the opaque payload as published
	Body []byte

	// DeliveryCount is 1 on first delivery and grows with each redelivery
	DeliveryCount int

	// EnqueuedAt is the time the broker accepted the message
	EnqueuedAt time.Time
}

// Broker creates channel clients. Implementations must be safe for
// concurrent use.
type Broker interface {
	// CreateSender returns a Sender that publishes to the named channel.
	CreateSender(channel string) (Sender, error)

	// CreateReceiver returns a Receiver bound to the named channel.
	CreateReceiver(channel string) (Receiver, error)

	// CreateProcessor returns a Processor that streams the named channel.
	CreateProcessor(channel string, opts ProcessorOptions) (Processor, error)

	// Close releases the broker connection. Clients created from a closed
	// broker fail with ReasonClosed.
	Close() error
}

// Sender publishes messages to one channel. Safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

// Receiver pulls messages from one channel.
type Receiver interface {
	// Receive waits up to maxWait for at least one message and returns at most
	// maxCount of them. An empty slice with a nil error means the wait elapsed.
	Receive(ctx context.Context, maxCount int, maxWait time.Duration) ([]ReceivedMessage, error)

	// Complete acknowledges a delivery, removing the message from the channel.
	Complete(ctx context.Context, handle Handle) error

	// Close releases the receiver. Pending deliveries that were not completed
	// become visible again once their visibility timeout lapses.
	Close() error

	// IsClosed reports whether Close has been called.
	IsClosed() bool
}
