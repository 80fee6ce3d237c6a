package watcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FSNotifyWatcher implements Watcher on fsnotify. fsnotify watches single
// directories only, so a recursive watch registers every directory in the
// tree and picks up new subdirectories from their create events.
type FSNotifyWatcher struct {
	fs  *fsnotify.Watcher
	cfg Config

	mu     sync.Mutex
	dirs   map[string]bool // watched path -> registered by a recursive watch
	closed bool

	out  chan Event
	errs chan error
	done chan struct{}
	wg   sync.WaitGroup
}

// NewFSNotifyWatcher creates a watcher and starts translating fsnotify
// events.
func NewFSNotifyWatcher(opts ...Option) (*FSNotifyWatcher, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}

	inner, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	w := &FSNotifyWatcher{
		fs:   inner,
		cfg:  cfg,
		dirs: make(map[string]bool),
		out:  make(chan Event, cfg.BufferSize),
		errs: make(chan error, cfg.BufferSize),
		done: make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// stat resolves path to an absolute path that exists.
func stat(path string) (string, fs.FileInfo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", nil, err
	}
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return abs, nil, ErrPathNotExist
	}
	return abs, info, err
}

// Watch watches one file or directory.
func (w *FSNotifyWatcher) Watch(path string) error {
	abs, _, err := stat(path)
	if err != nil {
		return err
	}
	return w.register(abs, false)
}

// WatchRecursive watches a directory and every directory below it that
// the ignore function lets through. A file is watched on its own.
func (w *FSNotifyWatcher) WatchRecursive(path string) error {
	abs, info, err := stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return w.register(abs, false)
	}
	return w.addTree(abs)
}

func (w *FSNotifyWatcher) register(abs string, recursive bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case w.closed:
		return ErrWatcherClosed
	case w.has(abs):
		return ErrAlreadyWatching
	}
	if err := w.fs.Add(abs); err != nil {
		return fmt.Errorf("watching %s: %w", abs, err)
	}
	w.dirs[abs] = recursive
	return nil
}

func (w *FSNotifyWatcher) has(abs string) bool {
	_, ok := w.dirs[abs]
	return ok
}

// addTree registers top and its subdirectories. Registration failures
// below top are reported on Errors and do not stop the walk.
func (w *FSNotifyWatcher) addTree(top string) error {
	return filepath.WalkDir(top, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			// A directory removed mid-walk is skipped.
			return nil
		}
		if p != top && w.ignored(p, true) {
			return filepath.SkipDir
		}
		err = w.register(p, true)
		if errors.Is(err, ErrWatcherClosed) {
			return err
		}
		if err != nil && !errors.Is(err, ErrAlreadyWatching) {
			w.fail(err)
		}
		return nil
	})
}

// Unwatch stops watching path. Subdirectories of a recursive watch stay
// registered.
func (w *FSNotifyWatcher) Unwatch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWatcherClosed
	}
	if !w.has(abs) {
		return ErrNotWatching
	}
	delete(w.dirs, abs)
	if err := w.fs.Remove(abs); err != nil {
		return fmt.Errorf("unwatching %s: %w", abs, err)
	}
	return nil
}

// Events implements Watcher.
func (w *FSNotifyWatcher) Events() <-chan Event { return w.out }

// Errors implements Watcher.
func (w *FSNotifyWatcher) Errors() <-chan error { return w.errs }

// Close stops translation, closes both channels and releases the
// fsnotify watcher. Calling it again is a no-op.
func (w *FSNotifyWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.done)
	w.mu.Unlock()

	w.wg.Wait()
	close(w.out)
	close(w.errs)
	return w.fs.Close()
}

// WatchedPaths returns every registered path in sorted order.
func (w *FSNotifyWatcher) WatchedPaths() []string {
	w.mu.Lock()
	out := make([]string, 0, len(w.dirs))
	for p := range w.dirs {
		out = append(out, p)
	}
	w.mu.Unlock()
	sort.Strings(out)
	return out
}

func (w *FSNotifyWatcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case raw, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.translate(raw)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.fail(err)
		}
	}
}

func (w *FSNotifyWatcher) translate(raw fsnotify.Event) {
	op := opFrom(raw.Op)
	if op == 0 {
		return
	}

	newDir := false
	if op.Has(OpCreate) {
		info, err := os.Stat(raw.Name)
		newDir = err == nil && info.IsDir()
	}
	if w.ignored(raw.Name, newDir) {
		return
	}

	if newDir && w.underTree(raw.Name) {
		_ = w.addTree(raw.Name)
		// Anything written into the directory before its watch existed
		// has produced no event of its own.
		w.announce(raw.Name)
	}

	w.deliver(Event{Path: raw.Name, Op: op, Timestamp: time.Now()})

	if op.Has(OpRemove) || op.Has(OpRename) {
		w.drop(raw.Name)
	}
}

// underTree reports whether p sits directly inside a recursively watched
// directory.
func (w *FSNotifyWatcher) underTree(p string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dirs[filepath.Dir(p)]
}

// announce emits a create event for every file already below dir.
func (w *FSNotifyWatcher) announce(dir string) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() && !w.ignored(p, false) {
			w.deliver(Event{Path: p, Op: OpCreate, Timestamp: time.Now()})
		}
		return nil
	})
}

// drop forgets p and everything registered below it. fsnotify removes its
// own watches for deleted directories.
func (w *FSNotifyWatcher) drop(p string) {
	below := p + string(filepath.Separator)
	w.mu.Lock()
	defer w.mu.Unlock()
	for dir := range w.dirs {
		if dir == p || strings.HasPrefix(dir, below) {
			delete(w.dirs, dir)
		}
	}
}

var opTable = []struct {
	from fsnotify.Op
	to   Op
}{
	{fsnotify.Create, OpCreate},
	{fsnotify.Write, OpWrite},
	{fsnotify.Remove, OpRemove},
	{fsnotify.Rename, OpRename},
	{fsnotify.Chmod, OpChmod},
}

func opFrom(raw fsnotify.Op) Op {
	var op Op
	for _, m := range opTable {
		if raw.Has(m.from) {
			op |= m.to
		}
	}
	return op
}

func (w *FSNotifyWatcher) ignored(p string, isDir bool) bool {
	return w.cfg.Ignore != nil && w.cfg.Ignore(p, isDir)
}

// deliver never blocks the translation loop: when the consumer is behind,
// the event is dropped and the drop reported.
func (w *FSNotifyWatcher) deliver(e Event) {
	select {
	case w.out <- e:
	default:
		w.fail(&DroppedEventError{Event: e})
	}
}

func (w *FSNotifyWatcher) fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.errs <- err:
	default:
	}
}

var _ Watcher = (*FSNotifyWatcher)(nil)
