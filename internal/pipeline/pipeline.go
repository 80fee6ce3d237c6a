// Package pipeline assembles tasks, watch bindings and output cleanup from
// the project configuration.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/dshills/sitesmith/internal/config"
	"github.com/dshills/sitesmith/internal/logging"
	"github.com/dshills/sitesmith/internal/pathset"
	"github.com/dshills/sitesmith/internal/task"
	"github.com/dshills/sitesmith/internal/transform"
	"github.com/dshills/sitesmith/internal/watcher"
)

// Pipeline is the registry and runner built for one project.
type Pipeline struct {
	config   *config.Config
	root     string
	out      string
	registry *task.Registry
	runner   *task.Runner
	log      *logging.Logger
}

// New registers every enabled task of cfg and freezes the registry.
func New(cfg *config.Config, root string, log *logging.Logger) (*Pipeline, error) {
	if log == nil {
		log = logging.Nop()
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("project root: %w", err)
	}

	p := &Pipeline{
		config:   cfg,
		root:     absRoot,
		out:      resolve(absRoot, cfg.Out),
		registry: task.NewRegistry(),
		log:      log,
	}

	for _, tc := range cfg.EnabledTasks() {
		d, err := p.descriptor(tc)
		if err != nil {
			return nil, err
		}
		if err := p.registry.Register(d); err != nil {
			return nil, err
		}
	}
	p.registry.Freeze()

	p.runner = task.NewRunner(p.registry, task.RunnerConfig{
		Root:          absRoot,
		MaxConcurrent: cfg.Build.MaxConcurrent,
	})
	p.runner.AddListener(NewLogListener(log))
	return p, nil
}

func (p *Pipeline) descriptor(tc config.TaskConfig) (task.Descriptor, error) {
	unit, err := transform.New(tc.Transform, tc.Name)
	if err != nil {
		return task.Descriptor{}, fmt.Errorf("task %s: %w", tc.Name, err)
	}
	sources, err := pathset.Compile(tc.Sources...)
	if err != nil {
		return task.Descriptor{}, fmt.Errorf("task %s sources: %w", tc.Name, err)
	}
	watch, err := pathset.Compile(tc.Watch...)
	if err != nil {
		return task.Descriptor{}, fmt.Errorf("task %s watch: %w", tc.Name, err)
	}
	return task.Descriptor{
		Name:      tc.Name,
		Transform: unit,
		Sources:   sources,
		Dest:      filepath.Join(p.out, filepath.FromSlash(tc.Dest)),
		Watch:     watch,
		Options:   transform.Options(tc.Options),
	}, nil
}

func resolve(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, filepath.FromSlash(p))
}

// Root returns the absolute project root.
func (p *Pipeline) Root() string { return p.root }

// OutDir returns the absolute output directory.
func (p *Pipeline) OutDir() string { return p.out }

// Registry returns the frozen task registry.
func (p *Pipeline) Registry() *task.Registry { return p.registry }

// Runner returns the task runner.
func (p *Pipeline) Runner() *task.Runner { return p.runner }

// Build runs the configured build order as one sequence.
func (p *Pipeline) Build(ctx context.Context) task.Report {
	return p.runner.RunSequence(ctx, p.config.BuildOrder())
}

// Bindings returns one watch binding per task with a watch set. Tasks
// sharing a watch set keep separate bindings, so each runs under its own
// lock.
func (p *Pipeline) Bindings() []watcher.Binding {
	var bindings []watcher.Binding
	for _, name := range p.registry.Names() {
		d, err := p.registry.Resolve(name)
		if err != nil || d.Watch.Empty() {
			continue
		}
		bindings = append(bindings, watcher.Binding{
			Name:  name,
			Watch: d.Watch,
			Tasks: []string{name},
		})
	}
	return bindings
}

// WatchIgnore ignores the output directory and hidden entries, so writes
// made by a run never trigger another.
func (p *Pipeline) WatchIgnore() watcher.IgnoreFunc {
	return watcher.IgnoreDirs(p.out)
}

// Clean removes the output directory.
func (p *Pipeline) Clean() error {
	return Clean(p.root, p.out)
}
