package events

import (
	"context"
	"log/slog"
)

// LogHandler writes every event to a structured logger at debug level, and
// completion failures at warn level.
type LogHandler struct {
	logger *slog.Logger
}

// NewLogHandler creates a LogHandler.
func NewLogHandler(logger *slog.Logger) *LogHandler {
	return &LogHandler{logger: logger.With("component", "dispatch_events")}
}

// HandleEvent implements EventHandler.
func (h *LogHandler) HandleEvent(ctx context.Context, event *DispatchEvent) error {
	level := slog.LevelDebug
	if event.Type == TypeCompletionFailed || event.Type == TypeTaskRejected {
		level = slog.LevelWarn
	}
	h.logger.Log(ctx, level, "dispatch event",
		"event_id", event.ID,
		"event_type", event.Type,
		"channel", event.Channel,
		"task_id", event.TaskID,
		"payload", string(event.Payload),
		"occurred_at", event.OccurredAt)
	return nil
}
