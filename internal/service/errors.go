package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/taskflow/internal/store"
)

// Sentinel errors returned by TaskService. Callers check them with errors.Is;
// the API layer maps them to HTTP status codes.
var (
	// ErrTaskNotFound indicates the task does not exist.
	// API layer should map this to HTTP 404 Not Found.
	ErrTaskNotFound = errors.New("task not found")

	// ErrPushModeActive is returned by pull operations while tasks are
	// consumed by the push consumer.
	// API layer should map this to HTTP 409 Conflict.
	ErrPushModeActive = errors.New("tasks are consumed in push mode")

	// ErrInvalidCount is returned when a receive count is outside 1..MaxReceiveCount.
	ErrInvalidCount = errors.New("receive count out of range")
)

// TaskServiceError wraps unexpected failures from the task service with context.
type TaskServiceError struct {
	// Operation is the operation that failed (e.g., "add_task", "receive_tasks")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for TaskServiceError.
func (e *TaskServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("task service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("task service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *TaskServiceError) Unwrap() error {
	return e.Err
}

// NewTaskServiceError creates a new TaskServiceError.
// Missing tasks are reported as ErrTaskNotFound without wrapping.
func NewTaskServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTaskNotFound) || errors.Is(err, store.ErrTaskNotFound) {
		return ErrTaskNotFound
	}
	return &TaskServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
