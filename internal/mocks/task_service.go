package mocks

import (
	"context"

	"github.com/phrazzld/taskflow/internal/domain"
	"github.com/phrazzld/taskflow/internal/service"
)

// MockTaskService implements service.TaskService for testing
type MockTaskService struct {
	// Custom behavior functions
	AddTaskFn                 func(ctx context.Context, req service.NewTask) (*domain.TaskMessage, error)
	GetTaskFn                 func(ctx context.Context, id int) (*domain.TaskMessage, error)
	ListTasksFn               func(ctx context.Context) ([]domain.TaskMessage, error)
	UpdateTaskStatusFn        func(ctx context.Context, id int, status domain.TaskStatus) error
	DeleteTaskFn              func(ctx context.Context, id int) error
	ReceiveTasksFn            func(ctx context.Context, count int) ([]domain.TaskMessage, error)
	ReceiveCompletionEventsFn func(ctx context.Context, count int) ([]domain.CompletionEvent, error)
	HandleTaskFn              func(ctx context.Context, task domain.TaskMessage) error

	// Default return values
	Task         *domain.TaskMessage
	Tasks        []domain.TaskMessage
	Events       []domain.CompletionEvent
	DefaultError error
}

var _ service.TaskService = (*MockTaskService)(nil)

// AddTask implements the TaskService.AddTask method
func (m *MockTaskService) AddTask(ctx context.Context, req service.NewTask) (*domain.TaskMessage, error) {
	if m.AddTaskFn != nil {
		return m.AddTaskFn(ctx, req)
	}
	return m.Task, m.DefaultError
}

// GetTask implements the TaskService.GetTask method
func (m *MockTaskService) GetTask(ctx context.Context, id int) (*domain.TaskMessage, error) {
	if m.GetTaskFn != nil {
		return m.GetTaskFn(ctx, id)
	}
	return m.Task, m.DefaultError
}

// ListTasks implements the TaskService.ListTasks method
func (m *MockTaskService) ListTasks(ctx context.Context) ([]domain.TaskMessage, error) {
	if m.ListTasksFn != nil {
		return m.ListTasksFn(ctx)
	}
	return m.Tasks, m.DefaultError
}

// UpdateTaskStatus implements the TaskService.UpdateTaskStatus method
func (m *MockTaskService) UpdateTaskStatus(ctx context.Context, id int, status domain.TaskStatus) error {
	if m.UpdateTaskStatusFn != nil {
		return m.UpdateTaskStatusFn(ctx, id, status)
	}
	return m.DefaultError
}

// DeleteTask implements the TaskService.DeleteTask method
func (m *MockTaskService) DeleteTask(ctx context.Context, id int) error {
	if m.DeleteTaskFn != nil {
		return m.DeleteTaskFn(ctx, id)
	}
	return m.DefaultError
}

// ReceiveTasks implements the TaskService.ReceiveTasks method
func (m *MockTaskService) ReceiveTasks(ctx context.Context, count int) ([]domain.TaskMessage, error) {
	if m.ReceiveTasksFn != nil {
		return m.ReceiveTasksFn(ctx, count)
	}
	return m.Tasks, m.DefaultError
}

// ReceiveCompletionEvents implements the TaskService.ReceiveCompletionEvents method
func (m *MockTaskService) ReceiveCompletionEvents(ctx context.Context, count int) ([]domain.CompletionEvent, error) {
	if m.ReceiveCompletionEventsFn != nil {
		return m.ReceiveCompletionEventsFn(ctx, count)
	}
	return m.Events, m.DefaultError
}

// HandleTask implements the TaskService.HandleTask method
func (m *MockTaskService) HandleTask(ctx context.Context, task domain.TaskMessage) error {
	if m.HandleTaskFn != nil {
		return m.HandleTaskFn(ctx, task)
	}
	return m.DefaultError
}
