package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrEmptyTaskName is returned when a task has no name.
	ErrEmptyTaskName = errors.New("task name cannot be empty")

	// ErrTaskNameTooLong is returned when a task name exceeds MaxTaskNameLength.
	ErrTaskNameTooLong = errors.New("task name is too long")

	// ErrInvalidTaskStatus is returned when a status value is not one of the
	// known TaskStatus values.
	ErrInvalidTaskStatus = errors.New("invalid task status")

	// ErrInvalidStatusTransition is returned when a status change would move a
	// task backwards (e.g. Completed -> InProgress).
	ErrInvalidStatusTransition = errors.New("invalid task status transition")
)
