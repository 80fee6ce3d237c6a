package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dshills/sitesmith/internal/logging"
	"github.com/dshills/sitesmith/internal/pathset"
	"github.com/dshills/sitesmith/internal/task"
)

// ErrAlreadyStarted is returned by Start when the coordinator is not idle.
var ErrAlreadyStarted = errors.New("coordinator already started")

// State is the coordinator lifecycle state.
type State string

const (
	// StateIdle means Start has not been called.
	StateIdle State = "idle"
	// StateWatching means changes trigger task runs.
	StateWatching State = "watching"
	// StateStopped is terminal.
	StateStopped State = "stopped"
)

// Runner runs a group of tasks concurrently. *task.Runner implements it.
type Runner interface {
	RunFanOut(ctx context.Context, names []string) task.Report
}

// Binding associates a watched path set with the tasks a change re-runs.
type Binding struct {
	Name  string
	Watch pathset.PathSet
	Tasks []string
}

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	// Root is the project root; watch patterns are relative to it.
	Root string

	// Debounce is the per-path quiet period. Default: DefaultDebounce.
	Debounce time.Duration

	// Ignore filters watched paths. Default: hidden entries only.
	Ignore IgnoreFunc

	// OnError receives every failed run and watcher error. binding is
	// empty for watcher errors.
	OnError func(binding string, err error)

	// OnRun is called after every run of a binding with the paths that
	// triggered it.
	OnRun func(binding string, paths []string, report task.Report)

	// Logger defaults to a no-op logger.
	Logger *logging.Logger

	// NewWatcher overrides the debounced fsnotify watcher.
	NewWatcher func() (Watcher, error)
}

// bindingState serializes the runs of one binding. An event that arrives
// while a run is in progress marks the binding dirty; exactly one more run
// follows, covering every change seen meanwhile.
type bindingState struct {
	Binding

	mu      sync.Mutex
	running bool
	dirty   bool
	changed []string
}

// Coordinator watches the project and re-runs the tasks of every binding
// whose watch set matches a changed path.
type Coordinator struct {
	runner Runner
	config CoordinatorConfig
	log    *logging.Logger

	bindings []*bindingState

	mu      sync.Mutex
	state   State
	watcher Watcher
	ctx     context.Context
	cancel  context.CancelFunc

	loopWg sync.WaitGroup
	runWg  sync.WaitGroup
}

// NewCoordinator creates an idle coordinator.
func NewCoordinator(runner Runner, bindings []Binding, config CoordinatorConfig) *Coordinator {
	if abs, err := filepath.Abs(config.Root); err == nil {
		config.Root = abs
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}
	if config.Ignore == nil {
		config.Ignore = IgnoreDirs()
	}
	log := config.Logger
	if log == nil {
		log = logging.Nop()
	}

	c := &Coordinator{
		runner: runner,
		config: config,
		log:    log.WithComponent("watch"),
		state:  StateIdle,
	}
	for _, b := range bindings {
		c.bindings = append(c.bindings, &bindingState{Binding: b})
	}
	return c
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start begins watching. It returns once every watch is registered; the
// session runs until ctx is canceled or Stop is called.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return ErrAlreadyStarted
	}

	w, err := c.newWatcher()
	if err != nil {
		return err
	}
	for _, dir := range c.WatchDirs() {
		if err := w.WatchRecursive(dir); err != nil {
			if errors.Is(err, ErrPathNotExist) {
				c.log.Warn("watch directory %s vanished before it could be watched", dir)
				continue
			}
			_ = w.Close()
			return fmt.Errorf("watching %s: %w", dir, err)
		}
		c.log.Debug("watching %s", dir)
	}

	c.watcher = w
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.state = StateWatching

	c.loopWg.Add(1)
	go c.loop(c.ctx, w)

	c.log.Info("watching %d bindings", len(c.bindings))
	return nil
}

func (c *Coordinator) newWatcher() (Watcher, error) {
	if c.config.NewWatcher != nil {
		return c.config.NewWatcher()
	}
	fsw, err := NewFSNotifyWatcher(WithIgnore(c.config.Ignore))
	if err != nil {
		return nil, err
	}
	return NewDebouncedWatcher(fsw, c.config.Debounce), nil
}

// Stop ends the session: the watcher is closed, in-flight runs are
// canceled and waited for. Stop is idempotent and may be called before Start.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if c.state != StateWatching {
		c.state = StateStopped
		c.mu.Unlock()
		return nil
	}
	c.state = StateStopped
	c.cancel()
	w := c.watcher
	c.mu.Unlock()

	err := w.Close()
	c.loopWg.Wait()
	c.runWg.Wait()
	c.log.Info("stopped")
	return err
}

// WatchDirs returns the absolute directories watched recursively: the
// static prefix of every binding's watch patterns, or its nearest existing
// ancestor inside the root. Directories nested in another are dropped.
func (c *Coordinator) WatchDirs() []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, b := range c.bindings {
		for _, base := range b.Watch.Bases() {
			dir := c.existingAncestor(filepath.Join(c.config.Root, filepath.FromSlash(base)))
			if !seen[dir] {
				seen[dir] = true
				dirs = append(dirs, dir)
			}
		}
	}
	sort.Strings(dirs)

	out := dirs[:0]
	for _, d := range dirs {
		if len(out) > 0 && isWithin(d, out[len(out)-1]) {
			continue
		}
		out = append(out, d)
	}
	return out
}

func (c *Coordinator) existingAncestor(dir string) string {
	for isWithin(dir, c.config.Root) && dir != c.config.Root {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
		dir = filepath.Dir(dir)
	}
	return c.config.Root
}

func isWithin(path, dir string) bool {
	return path == dir || strings.HasPrefix(path, dir+string(filepath.Separator))
}

func (c *Coordinator) loop(ctx context.Context, w Watcher) {
	defer c.loopWg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.Events():
			if !ok {
				return
			}
			c.dispatch(ctx, event)

		case err, ok := <-w.Errors():
			if !ok {
				return
			}
			c.report("", err)
		}
	}
}

// dispatch triggers every binding whose watch set matches the event path.
func (c *Coordinator) dispatch(ctx context.Context, event Event) {
	rel, err := filepath.Rel(c.config.Root, event.Path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return
	}
	rel = filepath.ToSlash(rel)

	matched := false
	for _, b := range c.bindings {
		if b.Watch.Match(rel) {
			matched = true
			c.trigger(ctx, b, rel)
		}
	}
	if matched {
		c.log.Debug("%s %s", event.Op, rel)
	}
}

func (c *Coordinator) trigger(ctx context.Context, b *bindingState, rel string) {
	b.mu.Lock()
	b.changed = append(b.changed, rel)
	if b.running {
		b.dirty = true
		b.mu.Unlock()
		return
	}
	b.running = true
	b.mu.Unlock()

	c.runWg.Add(1)
	go c.run(ctx, b)
}

// run executes the binding until no change arrived during the last run.
func (c *Coordinator) run(ctx context.Context, b *bindingState) {
	defer c.runWg.Done()

	for {
		b.mu.Lock()
		changed := b.changed
		b.changed = nil
		b.dirty = false
		b.mu.Unlock()

		if ctx.Err() != nil {
			b.mu.Lock()
			b.running = false
			b.mu.Unlock()
			return
		}

		c.log.Info("%s: %s changed, running %s", b.Name, summarize(changed), strings.Join(b.Tasks, ", "))
		report := c.runner.RunFanOut(ctx, b.Tasks)
		if report.Err != nil && ctx.Err() == nil {
			c.report(b.Name, report.Err)
		}
		if c.config.OnRun != nil {
			c.config.OnRun(b.Name, changed, report)
		}

		b.mu.Lock()
		if !b.dirty {
			b.running = false
			b.mu.Unlock()
			return
		}
		b.mu.Unlock()
	}
}

func (c *Coordinator) report(binding string, err error) {
	if binding == "" {
		c.log.Error("watcher: %v", err)
	} else {
		c.log.WithField("binding", binding).Error("%v", err)
	}
	if c.config.OnError != nil {
		c.config.OnError(binding, err)
	}
}

func summarize(paths []string) string {
	switch len(paths) {
	case 0:
		return "nothing"
	case 1:
		return paths[0]
	default:
		return fmt.Sprintf("%s and %d more", paths[0], len(paths)-1)
	}
}
