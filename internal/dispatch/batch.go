package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/taskflow/internal/broker"
	"github.com/phrazzld/taskflow/internal/events"
)

// batchReader runs the shared receive, decode and acknowledge loop for one
// channel. The receiver is opened per batch under mu and closed before the
// batch returns, so concurrent callers serialize on a single handle.
type batchReader[T any] struct {
	broker  broker.Broker
	channel string
	decode  func([]byte) (T, error)
	opts    Options
	logger  *slog.Logger

	mu       sync.Mutex
	receiver broker.Receiver
}

func newBatchReader[T any](b broker.Broker, channel string, decode func([]byte) (T, error), opts Options, component string) *batchReader[T] {
	return &batchReader[T]{
		broker:  b,
		channel: channel,
		decode:  decode,
		opts:    opts,
		logger:  opts.Logger.With("component", component, "channel", channel),
	}
}

// receive collects at most maxCount decoded values. onAck runs once for each
// value after its message was acknowledged. A transient failure restarts the
// receive for the remaining count and keeps what was already collected; on
// final failure the collected values are returned with the error.
func (r *batchReader[T]) receive(ctx context.Context, maxCount int, maxWait time.Duration, onAck func(context.Context, T)) ([]T, error) {
	if maxCount <= 0 {
		return nil, ErrInvalidBatchSize
	}
	if maxWait <= 0 {
		maxWait = r.opts.ReceiveMaxWait
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	receiver, err := r.acquireLocked()
	if err != nil {
		return nil, err
	}
	defer r.releaseLocked()

	// maxCount is a bound, not a size hint; callers may pass very large values
	var collected []T
	err = r.opts.Retry.Execute(ctx, func(ctx context.Context) error {
		remaining := maxCount - len(collected)
		if remaining <= 0 {
			return nil
		}

		msgs, err := receiver.Receive(ctx, remaining, maxWait)
		if err != nil {
			return err
		}

		for _, msg := range msgs {
			value, err := r.decode(msg.Body)
			if err != nil {
				r.logger.Warn("skipping undecodable message",
					"error", err,
					"message_id", msg.ID,
					"delivery_count", msg.DeliveryCount)
				emit(ctx, r.opts, r.logger, events.TypeTaskRejected, r.channel, 0,
					map[string]string{"message_id": msg.ID, "error": err.Error()})
				continue
			}

			// a cancelled caller must not strand a message it already decoded
			if err := receiver.Complete(context.WithoutCancel(ctx), msg.Handle); err != nil {
				if broker.IsTransient(err) {
					return err
				}
				// the message will be redelivered; do not report it twice
				r.logger.Warn("failed to acknowledge message",
					"error", err,
					"message_id", msg.ID)
				continue
			}

			collected = append(collected, value)
			if onAck != nil {
				onAck(ctx, value)
			}
		}
		return nil
	})
	if err != nil {
		return collected, fmt.Errorf("receive from %q: %w", r.channel, err)
	}
	return collected, nil
}

// acquireLocked returns the open receiver, creating it if it is missing or
// was closed. Callers must hold r.mu.
func (r *batchReader[T]) acquireLocked() (broker.Receiver, error) {
	if r.receiver != nil && !r.receiver.IsClosed() {
		return r.receiver, nil
	}
	receiver, err := r.broker.CreateReceiver(r.channel)
	if err != nil {
		return nil, fmt.Errorf("create receiver for %q: %w", r.channel, err)
	}
	r.receiver = receiver
	return receiver, nil
}

// releaseLocked closes and forgets the receiver. Callers must hold r.mu.
func (r *batchReader[T]) releaseLocked() {
	if r.receiver == nil {
		return
	}
	if err := r.receiver.Close(); err != nil {
		r.logger.Warn("failed to close receiver", "error", err)
	}
	r.receiver = nil
}

func (r *batchReader[T]) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseLocked()
	return nil
}
