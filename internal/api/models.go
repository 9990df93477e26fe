package api

import (
	"strings"

	"github.com/phrazzld/taskflow/internal/domain"
)

// CreateTaskRequest defines the payload for creating a task.
type CreateTaskRequest struct {
	Name        string  `json:"name"                  validate:"required,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1000"`
	AssignedTo  *string `json:"assigned_to,omitempty" validate:"omitempty,max=100"`
}

// UpdateStatusRequest defines the payload for moving a task to a new status.
// Status accepts the symbolic name (any case) or the integer ordinal.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// TaskResponse is the API representation of a task.
type TaskResponse struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Status      string  `json:"status"`
	AssignedTo  *string `json:"assigned_to"`
}

// TaskListResponse wraps a list of tasks.
type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
}

// ReceiveTasksResponse is returned by the pull endpoint.
type ReceiveTasksResponse struct {
	Tasks []TaskResponse `json:"tasks"`
}

// CompletionEventsResponse is returned by the completion-event pull endpoint.
type CompletionEventsResponse struct {
	Events []domain.CompletionEvent `json:"events"`
}

// trimmedPtr returns nil for absent or blank optional fields.
func trimmedPtr(s *string) *string {
	if s == nil {
		return nil
	}
	return domain.StringPtr(strings.TrimSpace(*s))
}

func taskToResponse(t domain.TaskMessage) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Status:      t.Status.String(),
		AssignedTo:  t.AssignedTo,
	}
}

func tasksToResponse(tasks []domain.TaskMessage) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskToResponse(t))
	}
	return out
}
