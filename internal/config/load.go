package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ParseError is a malformed or unrecognized configuration file.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("parse error in %s at line %d, column %d: %s", e.Path, e.Line, e.Column, e.Message)
	}
	if e.Line > 0 {
		return fmt.Sprintf("parse error in %s at line %d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// LoadOptions controls Load.
type LoadOptions struct {
	// Root is the project root. Default: the working directory.
	Root string

	// File is an explicit configuration file. When empty, DefaultFiles
	// are looked up in Root and a missing file is not an error.
	File string

	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Load builds the configuration from defaults, the project file and the
// environment, then validates it.
func Load(opts LoadOptions) (*Config, error) {
	if opts.Root == "" {
		opts.Root = "."
	}
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}

	cfg := Default()

	path, err := findFile(opts.Root, opts.File)
	if err != nil {
		return nil, err
	}
	if path != "" {
		file, err := ReadFile(path)
		if err != nil {
			return nil, err
		}
		cfg.Merge(file)
		cfg.Source = path
	}

	if err := NewEnvOverlay(opts.LookupEnv).Apply(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func findFile(root, explicit string) (string, error) {
	if explicit != "" {
		if !filepath.IsAbs(explicit) {
			explicit = filepath.Join(root, explicit)
		}
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return explicit, nil
	}
	for _, name := range DefaultFiles {
		p := filepath.Join(root, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// ReadFile decodes a TOML or YAML file, chosen by extension. Unknown keys
// are parse errors.
func ReadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return ParseTOML(path, data)
	case ".yaml", ".yml":
		return ParseYAML(path, data)
	default:
		return nil, &ParseError{Path: path, Message: "unsupported config format (want .toml, .yaml or .yml)"}
	}
}

// ParseTOML decodes TOML configuration. source names the input in errors.
func ParseTOML(source string, data []byte) (*Config, error) {
	var cfg Config
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		perr := &ParseError{Path: source, Message: err.Error(), Err: err}

		var decErr *toml.DecodeError
		var strictErr *toml.StrictMissingError
		switch {
		case errors.As(err, &decErr):
			perr.Line, perr.Column = decErr.Position()
		case errors.As(err, &strictErr) && len(strictErr.Errors) > 0:
			perr.Line, perr.Column = strictErr.Errors[0].Position()
			perr.Message = "unknown key " + strings.Join(strictErr.Errors[0].Key(), ".")
		}
		return nil, perr
	}
	return &cfg, nil
}

var reYAMLLine = regexp.MustCompile(`line (\d+)`)

// ParseYAML decodes YAML configuration. source names the input in errors.
func ParseYAML(source string, data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &cfg, nil
		}
		perr := &ParseError{Path: source, Message: err.Error(), Err: err}
		if m := reYAMLLine.FindStringSubmatch(err.Error()); m != nil {
			perr.Line, _ = strconv.Atoi(m[1])
		}
		return nil, perr
	}
	return &cfg, nil
}

// Merge overlays the values set in other onto c. Tasks merge by name: a
// task already declared keeps its position and takes every field set in
// other (options merge key by key); new tasks are appended.
func (c *Config) Merge(other *Config) {
	if other.Out != "" {
		c.Out = other.Out
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.Server.Host != "" {
		c.Server.Host = other.Server.Host
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Watch.Debounce != "" {
		c.Watch.Debounce = other.Watch.Debounce
	}
	if other.Build.Order != nil {
		c.Build.Order = other.Build.Order
	}
	if other.Build.MaxConcurrent != 0 {
		c.Build.MaxConcurrent = other.Build.MaxConcurrent
	}

	for _, t := range other.Tasks {
		existing, ok := c.Task(t.Name)
		if !ok {
			c.Tasks = append(c.Tasks, t)
			continue
		}
		existing.merge(t)
	}
}

func (t *TaskConfig) merge(o TaskConfig) {
	if o.Transform != "" {
		t.Transform = o.Transform
	}
	if o.Sources != nil {
		t.Sources = o.Sources
	}
	if o.Dest != "" {
		t.Dest = o.Dest
	}
	if o.Watch != nil {
		t.Watch = o.Watch
	}
	if o.Disabled {
		t.Disabled = true
	}
	if len(o.Options) > 0 {
		merged := make(map[string]any, len(t.Options)+len(o.Options))
		for k, v := range t.Options {
			merged[k] = v
		}
		for k, v := range o.Options {
			merged[k] = v
		}
		t.Options = merged
	}
}
