package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/phrazzld/taskflow/internal/store"
	"github.com/stretchr/testify/assert"
)

func TestSentinelErrors(t *testing.T) {
	t.Run("sentinel errors are different", func(t *testing.T) {
		assert.False(t, errors.Is(ErrTaskNotFound, ErrPushModeActive))
		assert.False(t, errors.Is(ErrPushModeActive, ErrInvalidCount))
	})
}

func TestTaskServiceError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *TaskServiceError
		expected string
	}{
		{
			name:     "with wrapped error",
			err:      &TaskServiceError{Operation: "add_task", Message: "failed to enqueue task", Err: errors.New("broker down")},
			expected: "task service add_task failed: failed to enqueue task: broker down",
		},
		{
			name:     "without wrapped error",
			err:      &TaskServiceError{Operation: "create_service", Message: "producer cannot be nil"},
			expected: "task service create_service failed: producer cannot be nil",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestNewTaskServiceError(t *testing.T) {
	assert.NoError(t, NewTaskServiceError("get_task", "failed", nil))

	err := NewTaskServiceError("get_task", "failed", fmt.Errorf("lookup: %w", store.ErrTaskNotFound))
	assert.Equal(t, ErrTaskNotFound, err, "missing tasks map to the service sentinel")

	cause := errors.New("connection reset")
	err = NewTaskServiceError("list_tasks", "failed to list tasks", cause)
	var svcErr *TaskServiceError
	assert.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "list_tasks", svcErr.Operation)
	assert.ErrorIs(t, err, cause)
}
