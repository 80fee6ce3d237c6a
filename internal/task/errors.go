package task

import (
	"errors"
	"fmt"
	"strings"
)

// Errors returned by registry and runner operations.
var (
	// ErrDuplicateTask indicates a task name was registered twice.
	ErrDuplicateTask = errors.New("duplicate task name")

	// ErrUnknownTask indicates a task name is not registered.
	ErrUnknownTask = errors.New("unknown task")

	// ErrInvalidDescriptor indicates a descriptor is missing required fields.
	ErrInvalidDescriptor = errors.New("invalid task descriptor")

	// ErrRegistryFrozen indicates Register was called after Freeze.
	ErrRegistryFrozen = errors.New("task registry is frozen")
)

// TransformError reports a failed task. It is the only error kind that a
// single task execution produces.
type TransformError struct {
	Category string // asset category of the transform unit
	Task     string // task name
	Message  string // short description of the failing step
	Err      error  // underlying error, if any
}

// NewTransformError creates a TransformError.
func NewTransformError(d Descriptor, msg string, err error) *TransformError {
	category := ""
	if d.Transform != nil {
		category = d.Transform.Category()
	}
	return &TransformError{Category: category, Task: d.Name, Message: msg, Err: err}
}

func (e *TransformError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Task
	if e.Category != "" && e.Category != e.Task {
		msg = fmt.Sprintf("%s (%s)", e.Task, e.Category)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *TransformError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// AggregateError collects every failure of a fan-out run.
type AggregateError struct {
	Errors []*TransformError
}

func (e *AggregateError) Error() string {
	if e == nil || len(e.Errors) == 0 {
		return ""
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	parts := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("%d tasks failed: %s", len(e.Errors), strings.Join(parts, "; "))
}

// Unwrap exposes every member error to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, len(e.Errors))
	for i, err := range e.Errors {
		out[i] = err
	}
	return out
}

// Tasks returns the names of the failed tasks in report order.
func (e *AggregateError) Tasks() []string {
	names := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		names[i] = err.Task
	}
	return names
}
