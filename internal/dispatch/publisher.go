package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/taskflow/internal/broker"
	"github.com/phrazzld/taskflow/internal/events"
)

// publisher owns one sender and publishes envelopes through the retry policy.
// It is safe for concurrent use because broker.Sender is.
type publisher struct {
	channel string
	sender  broker.Sender
	opts    Options
	logger  *slog.Logger
}

func newPublisher(b broker.Broker, channel string, opts Options, component string) (*publisher, error) {
	if err := checkChannel(channel); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	sender, err := b.CreateSender(channel)
	if err != nil {
		return nil, fmt.Errorf("create sender for %q: %w", channel, err)
	}
	return &publisher{
		channel: channel,
		sender:  sender,
		opts:    opts,
		logger:  opts.Logger.With("component", component, "channel", channel),
	}, nil
}

// publish sends body in a fresh envelope. The same envelope, and therefore the
// same message ID, is reused across retries.
func (p *publisher) publish(ctx context.Context, body []byte, taskID int, eventType string) error {
	msg := broker.Message{
		ID:          uuid.NewString(),
		ContentType: broker.ContentTypeJSON,
		Body:        body,
	}

	err := p.opts.Retry.Execute(ctx, func(ctx context.Context) error {
		return p.sender.Send(ctx, msg)
	})
	if err != nil {
		p.logger.Error("failed to publish message",
			"error", err,
			"message_id", msg.ID,
			"task_id", taskID)
		return fmt.Errorf("publish to %q: %w", p.channel, err)
	}

	emit(ctx, p.opts, p.logger, eventType, p.channel, taskID, map[string]string{"message_id": msg.ID})
	return nil
}

func (p *publisher) close() error {
	return p.sender.Close()
}

// emit reports a pipeline step. Failures are logged at debug level and never
// surface to the caller.
func emit(ctx context.Context, opts Options, logger *slog.Logger, eventType, channel string, taskID int, payload interface{}) {
	event, err := events.NewDispatchEvent(eventType, channel, taskID, payload)
	if err != nil {
		logger.Debug("failed to build dispatch event", "error", err, "event_type", eventType)
		return
	}
	if err := opts.Emitter.EmitEvent(ctx, event); err != nil {
		logger.Debug("failed to emit dispatch event", "error", err, "event_type", eventType)
	}
}
