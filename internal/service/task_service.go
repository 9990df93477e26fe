package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/taskflow/internal/domain"
	"github.com/phrazzld/taskflow/internal/platform/logger"
	"github.com/phrazzld/taskflow/internal/store"
)

// Receive limits
const (
	MaxReceiveCount       = 100
	DefaultReceiveMaxWait = 5 * time.Second
)

// TaskSender enqueues task snapshots. Implemented by dispatch.TaskProducer.
type TaskSender interface {
	Send(ctx context.Context, task domain.TaskMessage) error
}

// TaskReceiver takes task messages off the task channel.
// Implemented by dispatch.PullConsumer.
type TaskReceiver interface {
	ReceiveBatch(ctx context.Context, maxCount int, maxWait time.Duration) ([]domain.TaskMessage, error)
}

// CompletionReceiver takes events off the completion channel.
// Implemented by dispatch.CompletionEventConsumer.
type CompletionReceiver interface {
	ReceiveBatch(ctx context.Context, maxCount int, maxWait time.Duration) ([]domain.CompletionEvent, error)
}

// NewTask carries the caller-supplied fields of a task to create.
type NewTask struct {
	Name        string
	Description *string
	AssignedTo  *string
}

// TaskService provides site task operations.
type TaskService interface {
	// AddTask stores a new task, enqueues it and marks it in progress.
	AddTask(ctx context.Context, req NewTask) (*domain.TaskMessage, error)

	// GetTask returns a task by ID.
	GetTask(ctx context.Context, id int) (*domain.TaskMessage, error)

	// ListTasks returns all tasks ordered by ID.
	ListTasks(ctx context.Context) ([]domain.TaskMessage, error)

	// UpdateTaskStatus moves a task forward to status.
	UpdateTaskStatus(ctx context.Context, id int, status domain.TaskStatus) error

	// DeleteTask removes a task.
	DeleteTask(ctx context.Context, id int) error

	// ReceiveTasks pulls up to count task messages and marks their records completed.
	ReceiveTasks(ctx context.Context, count int) ([]domain.TaskMessage, error)

	// ReceiveCompletionEvents pulls up to count completion events.
	ReceiveCompletionEvents(ctx context.Context, count int) ([]domain.CompletionEvent, error)

	// HandleTask is the push-mode handler: it marks the task's record completed.
	HandleTask(ctx context.Context, task domain.TaskMessage) error
}

// Options configures a TaskService.
type Options struct {
	// PushMode disables ReceiveTasks; tasks are consumed through HandleTask.
	PushMode bool

	// ReceiveMaxWait bounds each receive call.
	// If zero or negative, defaults to DefaultReceiveMaxWait.
	ReceiveMaxWait time.Duration
}

type taskServiceImpl struct {
	tasks       store.TaskStore
	producer    TaskSender
	consumer    TaskReceiver
	completions CompletionReceiver
	opts        Options
	logger      *slog.Logger
}

// NewTaskService creates a new TaskService.
// consumer may be nil in push mode; every other dependency is required.
func NewTaskService(
	tasks store.TaskStore,
	producer TaskSender,
	consumer TaskReceiver,
	completions CompletionReceiver,
	opts Options,
	logger *slog.Logger,
) (TaskService, error) {
	if tasks == nil {
		return nil, &TaskServiceError{Operation: "create_service", Message: "task store cannot be nil"}
	}
	if producer == nil {
		return nil, &TaskServiceError{Operation: "create_service", Message: "producer cannot be nil"}
	}
	if consumer == nil && !opts.PushMode {
		return nil, &TaskServiceError{Operation: "create_service", Message: "consumer is required in pull mode"}
	}
	if completions == nil {
		return nil, &TaskServiceError{Operation: "create_service", Message: "completion consumer cannot be nil"}
	}
	if opts.ReceiveMaxWait <= 0 {
		opts.ReceiveMaxWait = DefaultReceiveMaxWait
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &taskServiceImpl{
		tasks:       tasks,
		producer:    producer,
		consumer:    consumer,
		completions: completions,
		opts:        opts,
		logger:      logger.With("component", "task_service"),
	}, nil
}

// AddTask stores the task as NotStarted, sends that snapshot to the task
// channel and then records it as InProgress. If the send fails the stored
// task stays NotStarted.
func (s *taskServiceImpl) AddTask(ctx context.Context, req NewTask) (*domain.TaskMessage, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	task := &domain.TaskMessage{
		Name:        req.Name,
		Description: req.Description,
		Status:      domain.TaskStatusNotStarted,
		AssignedTo:  req.AssignedTo,
	}
	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		log.Error("failed to store task", "error", err)
		return nil, NewTaskServiceError("add_task", "failed to store task", err)
	}

	if err := s.producer.Send(ctx, *task); err != nil {
		log.Error("failed to enqueue task", "error", err, "task_id", task.ID)
		return nil, NewTaskServiceError("add_task", "failed to enqueue task", err)
	}

	err := s.tasks.UpdateStatus(ctx, task.ID, domain.TaskStatusInProgress)
	switch {
	case err == nil:
		task.Status = domain.TaskStatusInProgress
	case errors.Is(err, domain.ErrInvalidStatusTransition):
		// A push consumer may complete the task before it is marked in progress.
		current, gerr := s.tasks.GetByID(ctx, task.ID)
		if gerr != nil {
			return nil, NewTaskServiceError("add_task", "failed to reload task", gerr)
		}
		log.Debug("task consumed before it was marked in progress",
			"task_id", task.ID, "status", current.Status.String())
		task = current
	default:
		log.Error("failed to mark task in progress", "error", err, "task_id", task.ID)
		return nil, NewTaskServiceError("add_task", "failed to mark task in progress", err)
	}

	log.Info("task added and enqueued", "task_id", task.ID)
	return task, nil
}

// GetTask retrieves a task by its ID
func (s *taskServiceImpl) GetTask(ctx context.Context, id int) (*domain.TaskMessage, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, NewTaskServiceError("get_task", "failed to retrieve task", err)
	}
	return task, nil
}

// ListTasks returns every stored task
func (s *taskServiceImpl) ListTasks(ctx context.Context) ([]domain.TaskMessage, error) {
	tasks, err := s.tasks.List(ctx)
	if err != nil {
		return nil, NewTaskServiceError("list_tasks", "failed to list tasks", err)
	}
	return tasks, nil
}

// UpdateTaskStatus changes a task's status. Backward transitions fail with
// domain.ErrInvalidStatusTransition.
func (s *taskServiceImpl) UpdateTaskStatus(ctx context.Context, id int, status domain.TaskStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrInvalidTaskStatus)
	}
	err := s.tasks.UpdateStatus(ctx, id, status)
	if errors.Is(err, domain.ErrInvalidStatusTransition) {
		return err
	}
	return NewTaskServiceError("update_task_status", "failed to update task status", err)
}

// DeleteTask removes a task by its ID
func (s *taskServiceImpl) DeleteTask(ctx context.Context, id int) error {
	return NewTaskServiceError("delete_task", "failed to delete task", s.tasks.Delete(ctx, id))
}

// ReceiveTasks pulls a batch of task messages. The messages are already
// acknowledged when they arrive here, so failing to update a record is
// logged rather than returned.
func (s *taskServiceImpl) ReceiveTasks(ctx context.Context, count int) ([]domain.TaskMessage, error) {
	if s.opts.PushMode || s.consumer == nil {
		return nil, ErrPushModeActive
	}
	if err := checkCount(count); err != nil {
		return nil, err
	}
	log := logger.FromContextOrDefault(ctx, s.logger)

	tasks, recvErr := s.consumer.ReceiveBatch(ctx, count, s.opts.ReceiveMaxWait)
	for _, task := range tasks {
		s.markCompleted(ctx, log, task)
	}
	if recvErr != nil {
		log.Error("task receive ended with error",
			"error", recvErr,
			"received", len(tasks))
		return tasks, NewTaskServiceError("receive_tasks", "failed to receive tasks", recvErr)
	}

	log.Debug("tasks received", "count", len(tasks))
	return tasks, nil
}

// ReceiveCompletionEvents pulls a batch of completion events.
func (s *taskServiceImpl) ReceiveCompletionEvents(ctx context.Context, count int) ([]domain.CompletionEvent, error) {
	if err := checkCount(count); err != nil {
		return nil, err
	}
	events, err := s.completions.ReceiveBatch(ctx, count, s.opts.ReceiveMaxWait)
	if err != nil {
		return events, NewTaskServiceError("receive_completion_events", "failed to receive completion events", err)
	}
	return events, nil
}

// HandleTask marks a pushed task completed. A task whose record no longer
// exists is acknowledged anyway; other store failures are returned so the
// message is redelivered.
func (s *taskServiceImpl) HandleTask(ctx context.Context, task domain.TaskMessage) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	err := s.tasks.UpdateStatus(ctx, task.ID, domain.TaskStatusCompleted)
	switch {
	case err == nil:
		log.Info("task completed", "task_id", task.ID)
		return nil
	case errors.Is(err, store.ErrTaskNotFound):
		log.Warn("received task has no stored record", "task_id", task.ID)
		return nil
	default:
		return NewTaskServiceError("handle_task", "failed to mark task completed", err)
	}
}

func (s *taskServiceImpl) markCompleted(ctx context.Context, log *slog.Logger, task domain.TaskMessage) {
	err := s.tasks.UpdateStatus(ctx, task.ID, domain.TaskStatusCompleted)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrTaskNotFound):
		log.Warn("received task has no stored record", "task_id", task.ID)
	default:
		log.Error("failed to mark received task completed", "error", err, "task_id", task.ID)
	}
}

func checkCount(count int) error {
	if count < 1 || count > MaxReceiveCount {
		return fmt.Errorf("%w: %d (allowed 1..%d)", ErrInvalidCount, count, MaxReceiveCount)
	}
	return nil
}
