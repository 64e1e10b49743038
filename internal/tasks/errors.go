package tasks

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyTitle is returned before any store call when a title is blank.
	ErrEmptyTitle = errors.New("title is required")
	// ErrDuplicate reports a uniqueness violation, e.g. a recurring instance
	// that was already generated.
	ErrDuplicate = errors.New("duplicate task")
	// ErrNotFound reports a missing task.
	ErrNotFound = errors.New("task not found")
)

// ValidationError describes a record field that could not be normalized.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid task %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid task %s %v: %s", e.Field, e.Value, e.Reason)
}
