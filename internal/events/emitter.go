package events

import (
	"context"
	"log/slog"
	"sync"

	"go.uber.org/multierr"
)

type subscription struct {
	handler EventHandler
	types   map[string]struct{}
}

func (s subscription) wants(eventType string) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

// InMemoryEventEmitter fans dispatch events out to handlers registered in
// process. Handlers run synchronously on the emitting goroutine; wrap the
// emitter in an AsyncEmitter to keep the dispatch path off handler latency.
type InMemoryEventEmitter struct {
	mu     sync.RWMutex
	subs   []subscription
	logger *slog.Logger
}

// NewInMemoryEventEmitter creates an emitter with no handlers.
func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	return &InMemoryEventEmitter{
		logger: logger.With("component", "event_emitter"),
	}
}

// RegisterHandler subscribes handler to the given event types, or to every
// event when no type is given.
func (e *InMemoryEventEmitter) RegisterHandler(handler EventHandler, types ...string) {
	sub := subscription{handler: handler}
	if len(types) > 0 {
		sub.types = make(map[string]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs = append(e.subs, sub)
	e.logger.Debug("event handler registered",
		"handler_count", len(e.subs),
		"types", types)
}

// EmitEvent delivers event to every matching handler. A failing handler does
// not stop delivery to the others; all handler errors are combined.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *DispatchEvent) error {
	e.mu.RLock()
	subs := e.subs
	e.mu.RUnlock()

	var errs error
	delivered := 0
	for i, sub := range subs {
		if !sub.wants(event.Type) {
			continue
		}
		delivered++
		if err := sub.handler.HandleEvent(ctx, event); err != nil {
			e.logger.Error("event handler failed",
				"error", err,
				"handler_index", i,
				"event_id", event.ID,
				"event_type", event.Type,
				"task_id", event.TaskID)
			errs = multierr.Append(errs, err)
		}
	}

	if delivered == 0 {
		e.logger.Debug("no handler for event",
			"event_id", event.ID,
			"event_type", event.Type)
	}
	return errs
}
