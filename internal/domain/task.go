package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxTaskNameLength is the longest task name the task store accepts.
const MaxTaskNameLength = 100

// TaskStatus represents the lifecycle state of a task.
// Values are ordered: a task only ever moves forward through them.
type TaskStatus int

// Possible task status values
const (
	TaskStatusNotStarted TaskStatus = iota
	TaskStatusInProgress
	TaskStatusCompleted
)

var taskStatusNames = [...]string{
	TaskStatusNotStarted: "NotStarted",
	TaskStatusInProgress: "InProgress",
	TaskStatusCompleted:  "Completed",
}

// String returns the symbolic name of the status, e.g. "InProgress".
func (s TaskStatus) String() string {
	if !s.IsValid() {
		return "TaskStatus(" + strconv.Itoa(int(s)) + ")"
	}
	return taskStatusNames[s]
}

// IsValid reports whether s is one of the known status values.
func (s TaskStatus) IsValid() bool {
	return s >= TaskStatusNotStarted && s <= TaskStatusCompleted
}

// CanTransitionTo reports whether a task in status s may move to next.
// Staying in the same status is allowed; moving backwards is not.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	return s.IsValid() && next.IsValid() && next >= s
}

// ParseTaskStatus parses a status name case-insensitively. The integer
// ordinal ("0", "1", "2") is accepted as well.
func ParseTaskStatus(value string) (TaskStatus, error) {
	trimmed := strings.TrimSpace(value)
	for i, name := range taskStatusNames {
		if strings.EqualFold(trimmed, name) {
			return TaskStatus(i), nil
		}
	}

	if n, err := strconv.Atoi(trimmed); err == nil && TaskStatus(n).IsValid() {
		return TaskStatus(n), nil
	}

	return 0, fmt.Errorf("%w: %q", ErrInvalidTaskStatus, value)
}

// MarshalText implements encoding.TextMarshaler.
func (s TaskStatus) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTaskStatus, int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *TaskStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseTaskStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// UnmarshalJSON accepts either the symbolic name (any case) or the integer
// ordinal. Producers that serialize enums numerically are still readable.
func (s *TaskStatus) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		return s.UnmarshalText([]byte(name))
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidTaskStatus, data)
	}
	if !TaskStatus(n).IsValid() {
		return fmt.Errorf("%w: %d", ErrInvalidTaskStatus, n)
	}
	*s = TaskStatus(n)
	return nil
}

// TaskMessage is the task snapshot carried inside every task-channel message.
// It is a value type: copying it detaches it from the stored record, so
// changing the record after a send does not affect messages in flight.
//
// Field names and order match the wire format:
//
//	{"Id":1,"Name":"Test Task","Description":null,"Status":"NotStarted","AssignedTo":null}
type TaskMessage struct {
	ID          int        `json:"Id"`
	Name        string     `json:"Name"`
	Description *string    `json:"Description"`
	Status      TaskStatus `json:"Status"`
	AssignedTo  *string    `json:"AssignedTo"`
}

// Validate checks if the TaskMessage has valid data.
// Returns an error if any field fails validation.
func (t TaskMessage) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return ErrEmptyTaskName
	}

	if utf8.RuneCountInString(t.Name) > MaxTaskNameLength {
		return fmt.Errorf("%w: %d characters, maximum is %d",
			ErrTaskNameTooLong, utf8.RuneCountInString(t.Name), MaxTaskNameLength)
	}

	if !t.Status.IsValid() {
		return ErrInvalidTaskStatus
	}

	return nil
}

// StringPtr returns a pointer to s, or nil when s is empty.
// Optional task fields use nil to mean "absent".
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
