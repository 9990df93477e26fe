package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultAsyncBufferSize is the queue length used when none is configured.
const DefaultAsyncBufferSize = 256

// ErrEmitterClosed is returned by EmitEvent after Close.
var ErrEmitterClosed = errors.New("event emitter is closed")

// AsyncEmitter forwards events to another emitter on a background goroutine.
// EmitEvent never blocks: when the queue is full the event is dropped with a
// warning.
type AsyncEmitter struct {
	next   EventEmitter
	logger *slog.Logger
	queue  chan *DispatchEvent

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	dropped atomic.Uint64
}

// NewAsyncEmitter starts the delivery goroutine. Call Close to stop it.
func NewAsyncEmitter(next EventEmitter, bufferSize int, logger *slog.Logger) *AsyncEmitter {
	if bufferSize <= 0 {
		bufferSize = DefaultAsyncBufferSize
	}
	a := &AsyncEmitter{
		next:   next,
		logger: logger.With("component", "async_event_emitter"),
		queue:  make(chan *DispatchEvent, bufferSize),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

// EmitEvent enqueues event for delivery.
func (a *AsyncEmitter) EmitEvent(_ context.Context, event *DispatchEvent) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrEmitterClosed
	}

	select {
	case a.queue <- event:
	default:
		a.dropped.Add(1)
		a.logger.Warn("event queue full, dropping event",
			"event_id", event.ID,
			"event_type", event.Type,
			"buffer_size", cap(a.queue))
	}
	return nil
}

// Dropped returns the number of events discarded because the queue was full.
func (a *AsyncEmitter) Dropped() uint64 {
	return a.dropped.Load()
}

// Close stops accepting events and waits until queued events are delivered
// or ctx ends.
func (a *AsyncEmitter) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *AsyncEmitter) run() {
	defer close(a.done)
	for event := range a.queue {
		// delivery is detached from the emitting request
		if err := a.next.EmitEvent(context.Background(), event); err != nil {
			a.logger.Debug("async event delivery failed",
				"error", err,
				"event_id", event.ID,
				"event_type", event.Type)
		}
	}
}
