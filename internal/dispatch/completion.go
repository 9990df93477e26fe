package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/phrazzld/taskflow/internal/broker"
	"github.com/phrazzld/taskflow/internal/domain"
	"github.com/phrazzld/taskflow/internal/events"
)

// CompletionSender publishes completion events. CompletionEventProducer is the
// broker-backed implementation.
type CompletionSender interface {
	Send(ctx context.Context, event domain.CompletionEvent) error
}

// CompletionEventProducer publishes completion events to the completion channel.
type CompletionEventProducer struct {
	pub *publisher
}

var _ CompletionSender = (*CompletionEventProducer)(nil)

// NewCompletionEventProducer creates a producer bound to channel.
func NewCompletionEventProducer(b broker.Broker, channel string, opts Options) (*CompletionEventProducer, error) {
	pub, err := newPublisher(b, channel, opts, "completion_event_producer")
	if err != nil {
		return nil, err
	}
	return &CompletionEventProducer{pub: pub}, nil
}

// Send encodes event and publishes it, retrying transient broker failures.
func (p *CompletionEventProducer) Send(ctx context.Context, event domain.CompletionEvent) error {
	body, err := EncodeCompletionEvent(event)
	if err != nil {
		return fmt.Errorf("encode completion event for task %d: %w", event.TaskID, err)
	}
	if err := p.pub.publish(ctx, body, event.TaskID, events.TypeCompletionSent); err != nil {
		return fmt.Errorf("send completion event for task %d: %w", event.TaskID, err)
	}
	return nil
}

// Close releases the sender.
func (p *CompletionEventProducer) Close() error {
	return p.pub.close()
}

// CompletionEventConsumer drains the completion channel in bounded batches.
// It is the terminal stage and emits nothing downstream.
type CompletionEventConsumer struct {
	reader *batchReader[domain.CompletionEvent]
	opts   Options
}

// NewCompletionEventConsumer creates a consumer for channel. The receiver is
// opened lazily on each ReceiveBatch call.
func NewCompletionEventConsumer(b broker.Broker, channel string, opts Options) (*CompletionEventConsumer, error) {
	if err := checkChannel(channel); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	return &CompletionEventConsumer{
		reader: newBatchReader(b, channel, DecodeCompletionEvent, opts, "completion_event_consumer"),
		opts:   opts,
	}, nil
}

// ReceiveBatch returns up to maxCount completion events, acknowledging each one
// that decoded. Undecodable messages are left for redelivery.
func (c *CompletionEventConsumer) ReceiveBatch(ctx context.Context, maxCount int, maxWait time.Duration) ([]domain.CompletionEvent, error) {
	return c.reader.receive(ctx, maxCount, maxWait, func(ctx context.Context, event domain.CompletionEvent) {
		emit(ctx, c.opts, c.reader.logger, events.TypeCompletionReceived, c.reader.channel, event.TaskID, nil)
	})
}

// Close releases any receiver left open.
func (c *CompletionEventConsumer) Close() error {
	return c.reader.close()
}
