package broker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Default processor settings
const (
	DefaultPrefetchCount = 10
	DefaultProcessorWait = 5 * time.Second
	DefaultErrorBackoff  = time.Second
)

// ProcessorOptions configures a continuous processor.
type ProcessorOptions struct {
	// PrefetchCount is the number of messages requested per receive call.
	// If zero or negative, defaults to DefaultPrefetchCount.
	PrefetchCount int

	// MaxWait bounds each underlying receive call.
	// If zero or negative, defaults to DefaultProcessorWait.
	MaxWait time.Duration

	// ErrorBackoff is the pause after a failed receive before trying again.
	// If zero or negative, defaults to DefaultErrorBackoff.
	ErrorBackoff time.Duration
}

func (o ProcessorOptions) withDefaults() ProcessorOptions {
	if o.PrefetchCount <= 0 {
		o.PrefetchCount = DefaultPrefetchCount
	}
	if o.MaxWait <= 0 {
		o.MaxWait = DefaultProcessorWait
	}
	if o.ErrorBackoff <= 0 {
		o.ErrorBackoff = DefaultErrorBackoff
	}
	return o
}

// Delivery is a message handed out by a Processor together with the means
// to acknowledge it.
type Delivery struct {
	Message  ReceivedMessage
	receiver Receiver
}

// Complete acknowledges the delivery on the receiver that produced it.
func (d Delivery) Complete(ctx context.Context) error {
	if d.receiver == nil {
		return ErrClosed
	}
	return d.receiver.Complete(ctx, d.Message.Handle)
}

// NewDelivery pairs a received message with the receiver that must complete it.
func NewDelivery(msg ReceivedMessage, receiver Receiver) Delivery {
	return Delivery{Message: msg, receiver: receiver}
}

// Processor streams a channel continuously.
type Processor interface {
	// Stream pushes deliveries into out until ctx is cancelled, in which case
	// it returns nil. Receive failures are reported to onError and streaming
	// continues; only a closed processor or receiver ends the stream with an error.
	Stream(ctx context.Context, out chan<- Delivery, onError func(error)) error

	// Close stops the processor and releases its receiver.
	Close() error
}

// PollingProcessor implements Processor on top of any Receiver by issuing
// back-to-back bounded receives. Drivers without a native streaming API use it.
type PollingProcessor struct {
	receiver Receiver
	opts     ProcessorOptions

	mu     sync.Mutex
	closed bool
}

// NewPollingProcessor creates a processor that owns receiver.
func NewPollingProcessor(receiver Receiver, opts ProcessorOptions) *PollingProcessor {
	return &PollingProcessor{
		receiver: receiver,
		opts:     opts.withDefaults(),
	}
}

// Stream implements Processor.
func (p *PollingProcessor) Stream(ctx context.Context, out chan<- Delivery, onError func(error)) error {
	if onError == nil {
		onError = func(error) {}
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		if p.isClosed() || p.receiver.IsClosed() {
			return ErrClosed
		}

		msgs, err := p.receiver.Receive(ctx, p.opts.PrefetchCount, p.opts.MaxWait)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if ReasonOf(err) == ReasonClosed || errors.Is(err, ErrClosed) {
				return err
			}
			onError(err)
			if !sleepCtx(ctx, p.opts.ErrorBackoff) {
				return nil
			}
			continue
		}

		for _, msg := range msgs {
			select {
			case out <- NewDelivery(msg, p.receiver):
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Close implements Processor.
func (p *PollingProcessor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.receiver.Close()
}

func (p *PollingProcessor) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// sleepCtx waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
