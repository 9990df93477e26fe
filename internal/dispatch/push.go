package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phrazzld/taskflow/internal/broker"
	"github.com/phrazzld/taskflow/internal/domain"
	"github.com/phrazzld/taskflow/internal/events"
	"golang.org/x/sync/errgroup"
)

// DefaultAckTimeout bounds a push acknowledgment when none is configured.
const DefaultAckTimeout = 30 * time.Second

// Handler processes one task delivered to a PushConsumer. Returning an error
// (or panicking) leaves the message unacknowledged for redelivery.
type Handler func(ctx context.Context, task domain.TaskMessage) error

// PushOptions configures a PushConsumer.
type PushOptions struct {
	Options

	// Processor tunes the underlying broker stream.
	Processor broker.ProcessorOptions

	// BufferSize is the capacity of the queue between the broker stream and
	// the handler worker. Every buffered delivery is already leased, so up to
	// BufferSize + PrefetchCount messages age toward their visibility timeout
	// while the handler works. Keep
	//   (BufferSize + PrefetchCount) * handler latency < visibility timeout
	// or acks fail with LockLost and the tasks are redelivered. Defaults to,
	// and is capped at, the processor's PrefetchCount.
	BufferSize int

	// AckTimeout bounds acknowledgment of a handled message, including after
	// Stop was requested. Defaults to DefaultAckTimeout.
	AckTimeout time.Duration
}

// PushConsumer continuously consumes the task channel. A broker processor
// feeds an internal queue and a single worker applies the handler to one
// message at a time, in delivery order.
type PushConsumer struct {
	broker      broker.Broker
	channel     string
	completions CompletionSender
	opts        PushOptions
	logger      *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	handled      atomic.Uint64
	failed       atomic.Uint64
	emitFailures atomic.Uint64
}

// NewPushConsumer creates a stopped consumer for channel. completions may be
// nil, in which case no completion events are produced.
func NewPushConsumer(b broker.Broker, channel string, completions CompletionSender, opts PushOptions) (*PushConsumer, error) {
	if err := checkChannel(channel); err != nil {
		return nil, err
	}
	opts.Options = opts.Options.withDefaults()
	prefetch := opts.Processor.PrefetchCount
	if prefetch <= 0 {
		prefetch = broker.DefaultPrefetchCount
	}
	if opts.BufferSize <= 0 || opts.BufferSize > prefetch {
		opts.BufferSize = prefetch
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = DefaultAckTimeout
	}
	return &PushConsumer{
		broker:      b,
		channel:     channel,
		completions: completions,
		opts:        opts,
		logger:      opts.Logger.With("component", "push_consumer", "channel", channel),
	}, nil
}

// Start begins consuming in the background and returns immediately. The
// consumer runs until Stop is called, ctx is cancelled, or the broker stream
// ends with an error.
func (c *PushConsumer) Start(ctx context.Context, handler Handler) error {
	if handler == nil {
		return ErrNilHandler
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrConsumerRunning
	}

	processor, err := c.broker.CreateProcessor(c.channel, c.opts.Processor)
	if err != nil {
		return fmt.Errorf("create processor for %q: %w", c.channel, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	deliveries := make(chan broker.Delivery, c.opts.BufferSize)

	g.Go(func() error {
		defer close(deliveries)
		return processor.Stream(gctx, deliveries, c.onStreamError)
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case d, ok := <-deliveries:
				if !ok {
					return nil
				}
				c.process(gctx, handler, d)
			}
		}
	})

	done := make(chan struct{})
	c.running = true
	c.cancel = cancel
	c.done = done

	go func() {
		defer close(done)
		err := g.Wait()
		cancel()
		if closeErr := processor.Close(); closeErr != nil {
			c.logger.Warn("failed to close processor", "error", closeErr)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error("push consumer stopped unexpectedly", "error", err)
		} else {
			c.logger.Info("push consumer stopped")
		}

		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	c.logger.Info("push consumer started",
		"buffer_size", c.opts.BufferSize,
		"prefetch_count", c.opts.Processor.PrefetchCount)
	return nil
}

// Stop cancels consumption and waits until the in-flight message, if any, has
// been handled and the processor is closed, or until ctx ends. Stopping a
// consumer that is not running is a no-op.
func (c *PushConsumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop push consumer: %w", ctx.Err())
	}
}

// Running reports whether the consumer is active.
func (c *PushConsumer) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Handled returns the number of messages handled and acknowledged.
func (c *PushConsumer) Handled() uint64 {
	return c.handled.Load()
}

// Failed returns the number of messages whose handler failed or panicked.
func (c *PushConsumer) Failed() uint64 {
	return c.failed.Load()
}

func (c *PushConsumer) onStreamError(err error) {
	c.logger.Error("broker stream error", "error", err, "transient", broker.IsTransient(err))
}

func (c *PushConsumer) process(ctx context.Context, handler Handler, d broker.Delivery) {
	msg := d.Message
	task, err := DecodeTask(msg.Body)
	if err != nil {
		c.logger.Warn("leaving undecodable message for redelivery",
			"error", err,
			"message_id", msg.ID,
			"delivery_count", msg.DeliveryCount)
		emit(ctx, c.opts.Options, c.logger, events.TypeTaskRejected, c.channel, 0,
			map[string]string{"message_id": msg.ID, "error": err.Error()})
		return
	}

	if err := invoke(ctx, handler, task); err != nil {
		c.failed.Add(1)
		c.logger.Error("task handler failed, message left for redelivery",
			"error", err,
			"task_id", task.ID,
			"message_id", msg.ID,
			"delivery_count", msg.DeliveryCount)
		return
	}

	// a handled message is acknowledged even when Stop was requested meanwhile
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.AckTimeout)
	defer cancel()
	if err := c.opts.Retry.Execute(ackCtx, d.Complete); err != nil {
		c.logger.Warn("failed to acknowledge handled message",
			"error", err,
			"task_id", task.ID,
			"message_id", msg.ID)
		return
	}

	emit(ackCtx, c.opts.Options, c.logger, events.TypeTaskReceived, c.channel, task.ID, nil)
	emitCompletion(ackCtx, c.completions, c.opts.Options, c.logger, c.channel, task, &c.emitFailures)
	c.handled.Add(1)
}

// invoke calls handler and turns a panic into an error.
func invoke(ctx context.Context, handler Handler, task domain.TaskMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, task)
}
