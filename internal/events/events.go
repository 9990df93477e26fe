package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the dispatch pipeline.
const (
	TypeTaskSent           = "task.sent"
	TypeTaskReceived       = "task.received"
	TypeTaskRejected       = "task.rejected"
	TypeCompletionSent     = "completion.sent"
	TypeCompletionFailed   = "completion.failed"
	TypeCompletionReceived = "completion.received"
)

// DispatchEvent records one pipeline step for one message.
type DispatchEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type is one of the Type* constants
	Type string `json:"type"`

	// Channel is the broker channel involved
	Channel string `json:"channel"`

	// TaskID is the task the message refers to, zero if unknown
	TaskID int `json:"task_id,omitempty"`

	// Payload carries step-specific details serialized as JSON
	Payload json.RawMessage `json:"payload,omitempty"`

	// OccurredAt is the timestamp when the step happened
	OccurredAt time.Time `json:"occurred_at"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *DispatchEvent) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// NewDispatchEvent creates a new DispatchEvent with the specified type and payload.
// A nil payload leaves Payload empty.
func NewDispatchEvent(eventType, channel string, taskID int, payload interface{}) (*DispatchEvent, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = b
	}

	return &DispatchEvent{
		ID:         uuid.New(),
		Type:       eventType,
		Channel:    channel,
		TaskID:     taskID,
		Payload:    payloadBytes,
		OccurredAt: time.Now().UTC(),
	}, nil
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *DispatchEvent) error
}

// EventEmitter defines an interface for components that can emit events.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *DispatchEvent) error
}

// NopEmitter discards every event.
type NopEmitter struct{}

// EmitEvent implements EventEmitter.
func (NopEmitter) EmitEvent(context.Context, *DispatchEvent) error { return nil }
