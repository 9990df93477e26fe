package dispatch

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/phrazzld/taskflow/internal/broker"
	"github.com/phrazzld/taskflow/internal/domain"
	"github.com/phrazzld/taskflow/internal/events"
)

// PullConsumer receives tasks in bounded batches and chains a completion
// event for each acknowledged task.
type PullConsumer struct {
	reader      *batchReader[domain.TaskMessage]
	completions CompletionSender
	opts        Options

	emitFailures atomic.Uint64
}

// NewPullConsumer creates a consumer for the task channel. completions may be
// nil, in which case no completion events are produced.
func NewPullConsumer(b broker.Broker, channel string, completions CompletionSender, opts Options) (*PullConsumer, error) {
	if err := checkChannel(channel); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	return &PullConsumer{
		reader:      newBatchReader(b, channel, DecodeTask, opts, "pull_consumer"),
		completions: completions,
		opts:        opts,
	}, nil
}

// ReceiveBatch waits up to maxWait for tasks and returns at most maxCount of
// them in delivery order. Each returned task was acknowledged exactly once.
// A non-positive maxWait uses the configured default.
//
// Acknowledgment precedes completion emission: if publishing the completion
// event fails, the failure is logged and the task is still returned.
func (c *PullConsumer) ReceiveBatch(ctx context.Context, maxCount int, maxWait time.Duration) ([]domain.TaskMessage, error) {
	tasks, err := c.reader.receive(ctx, maxCount, maxWait, c.complete)
	if len(tasks) > 0 {
		c.reader.logger.Debug("received task batch", "count", len(tasks), "max_count", maxCount)
	}
	return tasks, err
}

// EmitFailures returns how many completion events could not be published.
func (c *PullConsumer) EmitFailures() uint64 {
	return c.emitFailures.Load()
}

// Close releases any receiver left open.
func (c *PullConsumer) Close() error {
	return c.reader.close()
}

func (c *PullConsumer) complete(ctx context.Context, task domain.TaskMessage) {
	emit(ctx, c.opts, c.reader.logger, events.TypeTaskReceived, c.reader.channel, task.ID, nil)
	emitCompletion(ctx, c.completions, c.opts, c.reader.logger, c.reader.channel, task, &c.emitFailures)
}

// emitCompletion publishes the completion event for task. Failures are logged
// and counted, never returned.
func emitCompletion(ctx context.Context, completions CompletionSender, opts Options, logger *slog.Logger,
	channel string, task domain.TaskMessage, failures *atomic.Uint64) {
	if completions == nil {
		return
	}
	event := domain.NewCompletionEvent(task, opts.Now())
	if err := completions.Send(ctx, event); err != nil {
		failures.Add(1)
		logger.Error("failed to emit completion event",
			"error", err,
			"task_id", task.ID,
			"task_status", event.TaskStatus)
		emit(ctx, opts, logger, events.TypeCompletionFailed, channel, task.ID,
			map[string]string{"error": err.Error()})
	}
}
