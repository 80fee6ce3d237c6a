// Package config defines the sitesmith project configuration.
//
// Values are layered: built-in defaults, then the project file
// (sitesmith.toml or sitesmith.yaml), then SITESMITH_* environment
// variables. Command-line flags are applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/dshills/sitesmith/internal/logging"
	"github.com/dshills/sitesmith/internal/pathset"
	"github.com/dshills/sitesmith/internal/transform"
)

// ErrUnknownTransform is returned when a task names a transform kind that
// does not exist.
var ErrUnknownTransform = errors.New("unknown transform")

// Config is the full project configuration.
type Config struct {
	// Out is the output directory relative to the project root.
	Out string `toml:"out" yaml:"out"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level" yaml:"log_level"`

	Server ServerConfig `toml:"server" yaml:"server"`
	Watch  WatchConfig  `toml:"watch" yaml:"watch"`
	Build  BuildConfig  `toml:"build" yaml:"build"`

	// Tasks in declaration order. Task names are unique.
	Tasks []TaskConfig `toml:"tasks" yaml:"tasks"`

	// Source is the file the configuration was read from, if any.
	Source string `toml:"-" yaml:"-"`
}

// ServerConfig configures the development server.
type ServerConfig struct {
	Host string `toml:"host" yaml:"host"`
	Port int    `toml:"port" yaml:"port"`
}

// WatchConfig configures the watch session.
type WatchConfig struct {
	// Debounce is a duration string such as "150ms".
	Debounce string `toml:"debounce" yaml:"debounce"`
}

// BuildConfig configures the build sequence.
type BuildConfig struct {
	// Order lists the tasks run by "build", in order.
	Order []string `toml:"order" yaml:"order"`
	// MaxConcurrent bounds fan-out runs; 0 is unlimited.
	MaxConcurrent int `toml:"max_concurrent" yaml:"max_concurrent"`
}

// TaskConfig declares one task. Patterns are relative to the project root;
// Dest is relative to Out.
type TaskConfig struct {
	Name      string         `toml:"name" yaml:"name"`
	Transform string         `toml:"transform" yaml:"transform"`
	Sources   []string       `toml:"sources" yaml:"sources"`
	Dest      string         `toml:"dest" yaml:"dest"`
	Watch     []string       `toml:"watch" yaml:"watch"`
	Options   map[string]any `toml:"options" yaml:"options"`
	Disabled  bool           `toml:"disabled" yaml:"disabled"`
}

// DebounceDuration parses Watch.Debounce.
func (c *Config) DebounceDuration() (time.Duration, error) {
	if c.Watch.Debounce == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil {
		return 0, fmt.Errorf("watch.debounce: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("watch.debounce: negative duration %s", d)
	}
	return d, nil
}

// Level parses LogLevel.
func (c *Config) Level() (logging.Level, error) {
	level, ok := logging.ParseLevel(c.LogLevel)
	if !ok {
		return level, fmt.Errorf("log_level: unknown level %q", c.LogLevel)
	}
	return level, nil
}

// Task returns the task with the given name.
func (c *Config) Task(name string) (*TaskConfig, bool) {
	for i := range c.Tasks {
		if c.Tasks[i].Name == name {
			return &c.Tasks[i], true
		}
	}
	return nil, false
}

// EnabledTasks returns the tasks not marked disabled.
func (c *Config) EnabledTasks() []TaskConfig {
	out := make([]TaskConfig, 0, len(c.Tasks))
	for _, t := range c.Tasks {
		if !t.Disabled {
			out = append(out, t)
		}
	}
	return out
}

// Validate checks the configuration for errors that would otherwise
// surface only when a task runs.
func (c *Config) Validate() error {
	var errs []error

	if c.Out == "" {
		errs = append(errs, errors.New("out must not be empty"))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Build.MaxConcurrent < 0 {
		errs = append(errs, fmt.Errorf("build.max_concurrent must not be negative"))
	}
	if _, err := c.DebounceDuration(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}

	seen := make(map[string]bool)
	for _, t := range c.Tasks {
		if t.Name == "" {
			errs = append(errs, errors.New("task with empty name"))
			continue
		}
		if seen[t.Name] {
			errs = append(errs, fmt.Errorf("task %q declared twice", t.Name))
		}
		seen[t.Name] = true

		if _, err := transform.New(t.Transform, t.Name); err != nil {
			errs = append(errs, fmt.Errorf("task %q: %w %q", t.Name, ErrUnknownTransform, t.Transform))
		}
		if len(t.Sources) == 0 {
			errs = append(errs, fmt.Errorf("task %q: no sources", t.Name))
		}
		if _, err := pathset.Compile(t.Sources...); err != nil {
			errs = append(errs, fmt.Errorf("task %q sources: %w", t.Name, err))
		}
		if _, err := pathset.Compile(t.Watch...); err != nil {
			errs = append(errs, fmt.Errorf("task %q watch: %w", t.Name, err))
		}
	}

	for _, name := range c.Build.Order {
		if _, ok := c.Task(name); !ok {
			errs = append(errs, fmt.Errorf("build.order: unknown task %q", name))
		}
	}
	return errors.Join(errs...)
}

// BuildOrder returns Build.Order without disabled tasks.
func (c *Config) BuildOrder() []string {
	out := make([]string, 0, len(c.Build.Order))
	for _, name := range c.Build.Order {
		if t, ok := c.Task(name); ok && !t.Disabled {
			out = append(out, name)
		}
	}
	return out
}
