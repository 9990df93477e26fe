package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskMessageJSON(t *testing.T) {
	t.Parallel()

	task := TaskMessage{ID: 1, Name: "Test Task", Status: TaskStatusNotStarted}

	data, err := json.Marshal(task)
	require.NoError(t, err)
	assert.Equal(t,
		`{"Id":1,"Name":"Test Task","Description":null,"Status":"NotStarted","AssignedTo":null}`,
		string(data))
}

func TestTaskMessageRoundTrip(t *testing.T) {
	t.Parallel()

	desc := "check the scaffolding"
	assignee := "crew-7"

	for _, status := range []TaskStatus{TaskStatusNotStarted, TaskStatusInProgress, TaskStatusCompleted} {
		for _, task := range []TaskMessage{
			{ID: 1, Name: "bare", Status: status},
			{ID: 42, Name: "full", Description: &desc, Status: status, AssignedTo: &assignee},
		} {
			data, err := json.Marshal(task)
			require.NoError(t, err)

			var decoded TaskMessage
			require.NoError(t, json.Unmarshal(data, &decoded))
			assert.Equal(t, task, decoded)
		}
	}
}

func TestTaskStatusUnmarshalJSON(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		input   string
		want    TaskStatus
		wantErr bool
	}{
		{name: "exact name", input: `"InProgress"`, want: TaskStatusInProgress},
		{name: "lower case", input: `"completed"`, want: TaskStatusCompleted},
		{name: "upper case", input: `"NOTSTARTED"`, want: TaskStatusNotStarted},
		{name: "ordinal", input: `1`, want: TaskStatusInProgress},
		{name: "unknown name", input: `"Archived"`, wantErr: true},
		{name: "ordinal out of range", input: `7`, wantErr: true},
		{name: "wrong type", input: `true`, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var got TaskStatus
			err := json.Unmarshal([]byte(tc.input), &got)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTaskStatus)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTaskStatusTransitions(t *testing.T) {
	t.Parallel()

	assert.True(t, TaskStatusNotStarted.CanTransitionTo(TaskStatusInProgress))
	assert.True(t, TaskStatusInProgress.CanTransitionTo(TaskStatusCompleted))
	assert.True(t, TaskStatusInProgress.CanTransitionTo(TaskStatusInProgress))
	assert.False(t, TaskStatusCompleted.CanTransitionTo(TaskStatusNotStarted))
	assert.False(t, TaskStatus(9).CanTransitionTo(TaskStatusCompleted))
	assert.Equal(t, "TaskStatus(9)", TaskStatus(9).String())
}

func TestTaskMessageValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, TaskMessage{Name: "ok"}.Validate())
	assert.ErrorIs(t, TaskMessage{Name: "  "}.Validate(), ErrEmptyTaskName)
	assert.ErrorIs(t, TaskMessage{Name: strings.Repeat("x", MaxTaskNameLength+1)}.Validate(), ErrTaskNameTooLong)
	assert.ErrorIs(t, TaskMessage{Name: "ok", Status: TaskStatus(-1)}.Validate(), ErrInvalidTaskStatus)
}

func TestNewCompletionEvent(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+3", 3*60*60)
	now := time.Date(2026, 3, 1, 15, 0, 0, 0, loc)

	event := NewCompletionEvent(TaskMessage{ID: 1, Name: "Test Task", Status: TaskStatusInProgress}, now)

	assert.Equal(t, 1, event.TaskID)
	assert.Equal(t, "Test Task", event.TaskName)
	assert.Equal(t, "InProgress", event.TaskStatus)
	assert.Equal(t, time.UTC, event.CompletedAt.Location())
	assert.True(t, now.Equal(event.CompletedAt))
}
