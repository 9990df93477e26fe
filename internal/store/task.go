package store

import (
	"context"

	"github.com/phrazzld/taskflow/internal/domain"
)

// TaskStore persists task records. The store owns task IDs.
type TaskStore interface {
	// Create validates task, assigns it a new ID and saves it.
	// The assigned ID is written back to task.
	Create(ctx context.Context, task *domain.TaskMessage) error

	// GetByID returns the task with the given ID, or ErrTaskNotFound.
	GetByID(ctx context.Context, id int) (*domain.TaskMessage, error)

	// List returns all tasks ordered by ID.
	List(ctx context.Context) ([]domain.TaskMessage, error)

	// UpdateStatus moves a task to status. Moving backwards fails with
	// domain.ErrInvalidStatusTransition; a missing task with ErrTaskNotFound.
	// The check and the write are atomic.
	UpdateStatus(ctx context.Context, id int, status domain.TaskStatus) error

	// Delete removes a task, or returns ErrTaskNotFound.
	Delete(ctx context.Context, id int) error
}
