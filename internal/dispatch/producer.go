package dispatch

import (
	"context"
	"fmt"

	"github.com/phrazzld/taskflow/internal/broker"
	"github.com/phrazzld/taskflow/internal/domain"
	"github.com/phrazzld/taskflow/internal/events"
)

// TaskProducer publishes task snapshots to the task channel.
type TaskProducer struct {
	pub *publisher
}

// NewTaskProducer creates a producer with a sender bound to channel. The
// sender lives until Close.
func NewTaskProducer(b broker.Broker, channel string, opts Options) (*TaskProducer, error) {
	pub, err := newPublisher(b, channel, opts, "task_producer")
	if err != nil {
		return nil, err
	}
	return &TaskProducer{pub: pub}, nil
}

// Send encodes task and publishes it, retrying transient broker failures.
// The task's status is sent as given.
func (p *TaskProducer) Send(ctx context.Context, task domain.TaskMessage) error {
	body, err := EncodeTask(task)
	if err != nil {
		return fmt.Errorf("encode task %d: %w", task.ID, err)
	}
	if err := p.pub.publish(ctx, body, task.ID, events.TypeTaskSent); err != nil {
		return fmt.Errorf("send task %d: %w", task.ID, err)
	}
	p.pub.logger.Debug("task sent", "task_id", task.ID, "status", task.Status.String())
	return nil
}

// Close releases the sender.
func (p *TaskProducer) Close() error {
	return p.pub.close()
}
