package task

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/sitesmith/internal/transform"
)

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// Root is the project root that source patterns and relative
	// destinations are resolved against.
	Root string

	// MaxConcurrent bounds fan-out parallelism (0 = unlimited).
	MaxConcurrent int
}

// Hook is called after a task succeeds, with its outputs.
type Hook func(ctx context.Context, res Result)

// Listener receives task execution events.
type Listener interface {
	// OnTaskStarted is called before the transform is invoked.
	OnTaskStarted(executionID, name string)

	// OnTaskFinished is called with the terminal result.
	OnTaskFinished(res Result)
}

// Runner executes registered tasks.
type Runner struct {
	registry *Registry
	config   RunnerConfig

	hooks       []Hook
	listeners   []Listener
	listenersMu sync.RWMutex
}

// NewRunner creates a runner over a registry.
func NewRunner(registry *Registry, config RunnerConfig) *Runner {
	if config.Root == "" {
		config.Root = "."
	}
	if abs, err := filepath.Abs(config.Root); err == nil {
		config.Root = abs
	}
	return &Runner{registry: registry, config: config}
}

// Registry returns the runner's registry.
func (r *Runner) Registry() *Registry {
	return r.registry
}

// Root returns the absolute project root.
func (r *Runner) Root() string {
	return r.config.Root
}

// OnSuccess adds a post-success hook.
func (r *Runner) OnSuccess(h Hook) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	r.hooks = append(r.hooks, h)
}

// AddListener adds an execution listener.
func (r *Runner) AddListener(l Listener) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	r.listeners = append(r.listeners, l)
}

// DestPath returns the absolute destination of a descriptor.
func (r *Runner) DestPath(d Descriptor) string {
	if filepath.IsAbs(d.Dest) {
		return filepath.Clean(d.Dest)
	}
	return filepath.Join(r.config.Root, filepath.FromSlash(d.Dest))
}

// RunTask executes a single task by name.
func (r *Runner) RunTask(ctx context.Context, name string) Result {
	d, err := r.registry.Resolve(name)
	if err != nil {
		return Result{
			ExecutionID: uuid.New().String(),
			Task:        name,
			Status:      StatusFailed,
			Err:         &TransformError{Task: name, Message: "resolve", Err: err},
			Started:     time.Now(),
		}
	}
	return r.execute(ctx, d)
}

// execute runs one descriptor and notifies listeners and hooks.
func (r *Runner) execute(ctx context.Context, d Descriptor) Result {
	res := Result{
		ExecutionID: uuid.New().String(),
		Task:        d.Name,
		Started:     time.Now(),
	}
	r.notifyStarted(res.ExecutionID, d.Name)

	fail := func(msg string, err error) Result {
		res.Status = StatusFailed
		res.Err = NewTransformError(d, msg, err)
		res.Duration = time.Since(res.Started)
		r.notifyFinished(res)
		return res
	}

	if err := ctx.Err(); err != nil {
		return fail("canceled", err)
	}

	inputs, err := d.Sources.Resolve(r.config.Root)
	if err != nil {
		return fail("resolving sources", err)
	}
	res.Inputs = inputs

	out, err := d.Transform.Transform(ctx, transform.Request{
		Root:    r.config.Root,
		Inputs:  inputs,
		Dest:    r.DestPath(d),
		Sources: d.Sources,
		Options: d.Options,
	})
	if err != nil {
		return fail("transform failed", err)
	}

	res.Status = StatusSucceeded
	res.Outputs = out.Files
	res.Warnings = out.Warnings
	res.Duration = time.Since(res.Started)
	r.notifyFinished(res)

	r.listenersMu.RLock()
	hooks := append([]Hook(nil), r.hooks...)
	r.listenersMu.RUnlock()
	for _, h := range hooks {
		h(ctx, res)
	}
	return res
}

// resolveAll looks up every name before anything runs.
func (r *Runner) resolveAll(names []string) ([]Descriptor, error) {
	descs := make([]Descriptor, 0, len(names))
	for _, name := range names {
		d, err := r.registry.Resolve(name)
		if err != nil {
			return nil, err
		}
		descs = append(descs, d)
	}
	return descs, nil
}

// RunSequence runs tasks in order, each after the previous completes.
// The first failure aborts the sequence; later tasks never start.
// Unknown names fail the call before any task runs.
func (r *Runner) RunSequence(ctx context.Context, names []string) Report {
	descs, err := r.resolveAll(names)
	if err != nil {
		return Report{Err: err}
	}

	var report Report
	for _, d := range descs {
		res := r.execute(ctx, d)
		report.Results = append(report.Results, res)
		if !res.Succeeded() {
			report.Err = res.Err
			return report
		}
	}
	return report
}

// RunFanOut runs tasks concurrently without ordering between them.
// Every member runs to completion regardless of the others. Duplicate names
// run once.
func (r *Runner) RunFanOut(ctx context.Context, names []string) Report {
	descs, err := r.resolveAll(dedupe(names))
	if err != nil {
		return Report{Err: err}
	}

	results := make([]Result, len(descs))
	var sem chan struct{}
	if r.config.MaxConcurrent > 0 {
		sem = make(chan struct{}, r.config.MaxConcurrent)
	}

	var wg sync.WaitGroup
	for i, d := range descs {
		wg.Add(1)
		go func(i int, d Descriptor) {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			results[i] = r.execute(ctx, d)
		}(i, d)
	}
	wg.Wait()

	report := Report{Results: results}
	var agg AggregateError
	for _, res := range results {
		if res.Err != nil {
			agg.Errors = append(agg.Errors, res.Err)
		}
	}
	if len(agg.Errors) > 0 {
		report.Err = &agg
	}
	return report
}

func (r *Runner) notifyStarted(id, name string) {
	r.listenersMu.RLock()
	defer r.listenersMu.RUnlock()
	for _, l := range r.listeners {
		l.OnTaskStarted(id, name)
	}
}

func (r *Runner) notifyFinished(res Result) {
	r.listenersMu.RLock()
	defer r.listenersMu.RUnlock()
	for _, l := range r.listeners {
		l.OnTaskFinished(res)
	}
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// String describes a report for logs.
func (r Report) String() string {
	ok := 0
	for _, res := range r.Results {
		if res.Succeeded() {
			ok++
		}
	}
	if r.Err != nil {
		return fmt.Sprintf("%d/%d tasks succeeded: %v", ok, len(r.Results), r.Err)
	}
	return fmt.Sprintf("%d/%d tasks succeeded", ok, len(r.Results))
}
