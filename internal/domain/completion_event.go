package domain

import "time"

// CompletionEvent records that a task message was received and acknowledged.
// It travels on the completion channel and is the terminal stage of the
// pipeline: nothing consumes it to produce further events.
type CompletionEvent struct {
	TaskID      int       `json:"TaskId"`
	TaskName    string    `json:"TaskName"`
	TaskStatus  string    `json:"TaskStatus"`
	CompletedAt time.Time `json:"CompletedAt"`
}

// NewCompletionEvent builds the completion event for a consumed task.
// TaskStatus captures the status carried by the message at receipt time and
// CompletedAt is normalized to UTC.
func NewCompletionEvent(task TaskMessage, now time.Time) CompletionEvent {
	return CompletionEvent{
		TaskID:      task.ID,
		TaskName:    task.Name,
		TaskStatus:  task.Status.String(),
		CompletedAt: now.UTC(),
	}
}
