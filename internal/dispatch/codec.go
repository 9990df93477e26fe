package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/phrazzld/taskflow/internal/domain"
)

// EncodeTask renders task as canonical JSON: status as its name, absent
// optional fields as null.
func EncodeTask(task domain.TaskMessage) ([]byte, error) {
	return json.Marshal(task)
}

// DecodeTask parses a task-channel payload.
func DecodeTask(body []byte) (domain.TaskMessage, error) {
	return decodeJSON[domain.TaskMessage](body)
}

// EncodeCompletionEvent renders a completion event as JSON.
func EncodeCompletionEvent(event domain.CompletionEvent) ([]byte, error) {
	return json.Marshal(event)
}

// DecodeCompletionEvent parses a completion-channel payload.
func DecodeCompletionEvent(body []byte) (domain.CompletionEvent, error) {
	return decodeJSON[domain.CompletionEvent](body)
}

var jsonNull = []byte("null")

// decodeJSON unmarshals body into a T. An empty or null body is a decode
// error rather than a zero value.
func decodeJSON[T any](body []byte) (T, error) {
	var v T
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, jsonNull) {
		return v, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return v, nil
}
