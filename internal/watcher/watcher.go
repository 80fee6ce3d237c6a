// Package watcher turns filesystem changes into task runs.
//
// FSNotifyWatcher reports raw changes below the watched directories,
// DebouncedWatcher coalesces bursts per path, and Coordinator maps each
// change onto the watch bindings whose path sets match it and runs their
// tasks without ever overlapping two runs of one binding.
package watcher

import (
	"errors"
	"path/filepath"
	"strings"
	"time"
)

// Common errors returned by watcher operations.
var (
	ErrWatcherClosed   = errors.New("watcher is closed")
	ErrAlreadyWatching = errors.New("path is already being watched")
	ErrNotWatching     = errors.New("path is not being watched")
	ErrPathNotExist    = errors.New("path does not exist")
)

// Op is a set of filesystem operations.
type Op uint32

const (
	// OpCreate indicates a file or directory was created.
	OpCreate Op = 1 << iota
	// OpWrite indicates a file was written to.
	OpWrite
	// OpRemove indicates a file or directory was removed.
	OpRemove
	// OpRename indicates a file or directory was renamed away.
	OpRename
	// OpChmod indicates permissions changed.
	OpChmod
)

// String returns the operations joined with "|", e.g. "CREATE|WRITE".
func (op Op) String() string {
	var parts []string
	for _, o := range []struct {
		op   Op
		name string
	}{
		{OpCreate, "CREATE"}, {OpWrite, "WRITE"}, {OpRemove, "REMOVE"},
		{OpRename, "RENAME"}, {OpChmod, "CHMOD"},
	} {
		if op.Has(o.op) {
			parts = append(parts, o.name)
		}
	}
	if len(parts) == 0 {
		return "UNKNOWN"
	}
	return strings.Join(parts, "|")
}

// Has reports whether op includes o.
func (op Op) Has(o Op) bool {
	return op&o == o
}

// Event is a filesystem change.
type Event struct {
	// Path is the absolute path of the affected file or directory.
	Path string
	// Op holds every operation seen for Path.
	Op Op
	// Timestamp is when the (last) change was seen.
	Timestamp time.Time
}

// Watcher reports filesystem changes.
type Watcher interface {
	// Watch watches a single file or directory (non-recursively).
	Watch(path string) error

	// WatchRecursive watches a directory and every subdirectory, including
	// subdirectories created later.
	WatchRecursive(path string) error

	// Unwatch stops watching a path.
	Unwatch(path string) error

	// Events is closed when the watcher is closed.
	Events() <-chan Event

	// Errors is closed when the watcher is closed.
	Errors() <-chan error

	// Close stops the watcher. It is safe to call more than once.
	Close() error

	// WatchedPaths returns every watched path.
	WatchedPaths() []string
}

// IgnoreFunc reports whether a path should produce no events. Ignored
// directories are not descended into.
type IgnoreFunc func(path string, isDir bool) bool

// Config holds watcher options.
type Config struct {
	// BufferSize is the capacity of the event and error channels.
	// Default: 256
	BufferSize int

	// Ignore filters paths before events are emitted.
	Ignore IgnoreFunc
}

// DefaultConfig returns the default watcher configuration.
func DefaultConfig() Config {
	return Config{BufferSize: 256}
}

// Option configures a watcher.
type Option func(*Config)

// WithBufferSize sets the channel capacity.
func WithBufferSize(size int) Option {
	return func(c *Config) {
		c.BufferSize = size
	}
}

// WithIgnore sets the ignore function.
func WithIgnore(fn IgnoreFunc) Option {
	return func(c *Config) {
		c.Ignore = fn
	}
}

// IgnoreDirs returns an IgnoreFunc that ignores each directory in dirs and
// everything below it, plus hidden entries (names starting with ".").
func IgnoreDirs(dirs ...string) IgnoreFunc {
	cleaned := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if abs, err := filepath.Abs(d); err == nil {
			cleaned = append(cleaned, abs)
		}
	}
	return func(path string, isDir bool) bool {
		if base := filepath.Base(path); len(base) > 1 && base[0] == '.' {
			return true
		}
		for _, d := range cleaned {
			if path == d || strings.HasPrefix(path, d+string(filepath.Separator)) {
				return true
			}
		}
		return false
	}
}
