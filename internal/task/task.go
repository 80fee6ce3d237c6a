package task

import (
	"fmt"
	"time"

	"github.com/dshills/sitesmith/internal/pathset"
	"github.com/dshills/sitesmith/internal/transform"
)

// Descriptor is the static definition of a build task.
type Descriptor struct {
	// Name is the unique task name.
	Name string

	// Transform is the unit that produces the task's outputs.
	Transform transform.Transform

	// Sources are the files handed to the transform, resolved per run.
	Sources pathset.PathSet

	// Dest is the output directory, relative to the project root or absolute.
	Dest string

	// Watch selects the file changes that trigger the task. It may be a
	// superset of Sources (e.g. template partials).
	Watch pathset.PathSet

	// Options are passed through to the transform.
	Options transform.Options
}

// Category returns the transform category, or "" without a transform.
func (d Descriptor) Category() string {
	if d.Transform == nil {
		return ""
	}
	return d.Transform.Category()
}

func (d Descriptor) validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDescriptor)
	}
	if d.Transform == nil {
		return fmt.Errorf("%w: task %s has no transform", ErrInvalidDescriptor, d.Name)
	}
	if d.Dest == "" {
		return fmt.Errorf("%w: task %s has no destination", ErrInvalidDescriptor, d.Name)
	}
	return nil
}

// Status is the terminal state of a task execution.
type Status string

const (
	// StatusSucceeded indicates the transform completed and its outputs are written.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the transform failed or could not start.
	StatusFailed Status = "failed"
)

// Result is the outcome of one task execution.
type Result struct {
	// ExecutionID uniquely identifies this execution.
	ExecutionID string

	// Task is the task name.
	Task string

	// Status is the terminal status.
	Status Status

	// Inputs are the resolved source paths.
	Inputs []string

	// Outputs are the absolute paths written.
	Outputs []string

	// Warnings are non-fatal findings reported by the transform.
	Warnings []string

	// Err is set when Status is StatusFailed.
	Err *TransformError

	// Started is when execution began.
	Started time.Time

	// Duration is how long execution took.
	Duration time.Duration
}

// Succeeded reports whether the task succeeded.
func (r Result) Succeeded() bool {
	return r.Status == StatusSucceeded
}

// Report is the outcome of a sequence or fan-out.
type Report struct {
	// Results holds one entry per task that ran, in request order.
	// Tasks that never started have no entry.
	Results []Result

	// Err is nil on success. Sequences set the first *TransformError,
	// fan-outs set an *AggregateError.
	Err error
}

// OK reports whether every task succeeded.
func (r Report) OK() bool {
	return r.Err == nil
}

// Result returns the result for the named task, if it ran.
func (r Report) Result(name string) (Result, bool) {
	for _, res := range r.Results {
		if res.Task == name {
			return res, true
		}
	}
	return Result{}, false
}

// Outputs returns every output written by successful tasks.
func (r Report) Outputs() []string {
	var out []string
	for _, res := range r.Results {
		out = append(out, res.Outputs...)
	}
	return out
}
