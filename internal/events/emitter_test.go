package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEvent(t *testing.T) *DispatchEvent {
	t.Helper()
	event, err := NewDispatchEvent(TypeTaskSent, "tasks", 7, map[string]string{"key": "value"})
	require.NoError(t, err)
	return event
}

func TestInMemoryEventEmitter(t *testing.T) {
	logger := discardLogger()

	t.Run("emit event with no handlers", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)

		// Should not error even with no handlers
		err := emitter.EmitEvent(context.Background(), newEvent(t))
		assert.NoError(t, err)
	})

	t.Run("emit event with successful handlers", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		handler1 := &MockEventHandler{}
		handler2 := &MockEventHandler{}
		emitter.RegisterHandler(handler1)
		emitter.RegisterHandler(handler2)

		event := newEvent(t)
		err := emitter.EmitEvent(context.Background(), event)
		assert.NoError(t, err)

		// Verify both handlers received the event
		require.Equal(t, 1, handler1.HandledCount())
		require.Equal(t, 1, handler2.HandledCount())
		assert.Equal(t, event, handler1.Events[0])
		assert.Equal(t, event, handler2.Events[0])
	})

	t.Run("emit event with failing handler", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		successHandler := &MockEventHandler{}
		failingHandler := &MockEventHandler{HandlerError: errors.New("handler error")}
		emitter.RegisterHandler(failingHandler)
		emitter.RegisterHandler(successHandler)

		err := emitter.EmitEvent(context.Background(), newEvent(t))
		assert.EqualError(t, err, "handler error")

		// Both handlers should still have received the event
		assert.Equal(t, 1, successHandler.HandledCount())
		assert.Equal(t, 1, failingHandler.HandledCount())
	})

	t.Run("errors from several handlers are combined", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		first := errors.New("first")
		second := errors.New("second")
		emitter.RegisterHandler(&MockEventHandler{HandlerError: first})
		emitter.RegisterHandler(&MockEventHandler{HandlerError: second})

		err := emitter.EmitEvent(context.Background(), newEvent(t))
		assert.ErrorIs(t, err, first)
		assert.ErrorIs(t, err, second)
	})

	t.Run("typed subscriptions only see their types", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		completions := &MockEventHandler{}
		all := &MockEventHandler{}
		emitter.RegisterHandler(completions, TypeCompletionSent, TypeCompletionFailed)
		emitter.RegisterHandler(all)

		require.NoError(t, emitter.EmitEvent(context.Background(), newEvent(t)))
		done, err := NewDispatchEvent(TypeCompletionSent, "completions", 7, nil)
		require.NoError(t, err)
		require.NoError(t, emitter.EmitEvent(context.Background(), done))

		assert.Equal(t, 1, completions.HandledCount())
		assert.Equal(t, TypeCompletionSent, completions.Events[0].Type)
		assert.Equal(t, 2, all.HandledCount())
	})
}

func TestAsyncEmitterDeliversInOrder(t *testing.T) {
	inner := NewInMemoryEventEmitter(discardLogger())
	handler := &MockEventHandler{}
	inner.RegisterHandler(handler)

	async := NewAsyncEmitter(inner, 16, discardLogger())
	first, second := newEvent(t), newEvent(t)
	require.NoError(t, async.EmitEvent(context.Background(), first))
	require.NoError(t, async.EmitEvent(context.Background(), second))

	// Close drains the queue
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, async.Close(ctx))

	require.Equal(t, 2, handler.HandledCount())
	assert.Equal(t, first.ID, handler.Events[0].ID)
	assert.Equal(t, second.ID, handler.Events[1].ID)

	assert.ErrorIs(t, async.EmitEvent(context.Background(), newEvent(t)), ErrEmitterClosed)
	// closing twice is harmless
	assert.NoError(t, async.Close(ctx))
}

func TestAsyncEmitterDropsWhenFull(t *testing.T) {
	inner := NewInMemoryEventEmitter(discardLogger())
	block := make(chan struct{})
	handler := &MockEventHandler{Block: block}
	inner.RegisterHandler(handler)

	async := NewAsyncEmitter(inner, 1, discardLogger())

	// The first event is picked up by the delivery goroutine and blocks there;
	// the queue then holds at most one more.
	for i := 0; i < 10; i++ {
		start := time.Now()
		require.NoError(t, async.EmitEvent(context.Background(), newEvent(t)))
		assert.Less(t, time.Since(start), 100*time.Millisecond, "emit must not block")
	}
	assert.GreaterOrEqual(t, async.Dropped(), uint64(8))

	close(block)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, async.Close(ctx))
	assert.Equal(t, uint64(10), async.Dropped()+uint64(handler.HandledCount()))
}
