package config

import (
	"fmt"
	"strconv"
	"strings"
)

// EnvPrefix prefixes every environment variable sitesmith reads.
const EnvPrefix = "SITESMITH_"

// EnvOverlay applies SITESMITH_* environment variables to a Config.
type EnvOverlay struct {
	lookup  func(string) (string, bool)
	mapping map[string]func(*Config, string) error
}

// NewEnvOverlay creates an overlay reading variables through lookup.
func NewEnvOverlay(lookup func(string) (string, bool)) *EnvOverlay {
	return &EnvOverlay{lookup: lookup, mapping: defaultEnvMapping()}
}

// defaultEnvMapping maps variable names (without prefix) to setters.
func defaultEnvMapping() map[string]func(*Config, string) error {
	return map[string]func(*Config, string) error{
		"OUT": func(c *Config, v string) error {
			c.Out = v
			return nil
		},
		"LOG_LEVEL": func(c *Config, v string) error {
			c.LogLevel = v
			return nil
		},
		"HOST": func(c *Config, v string) error {
			c.Server.Host = v
			return nil
		},
		"PORT": func(c *Config, v string) error {
			port, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("not a number: %q", v)
			}
			c.Server.Port = port
			return nil
		},
		"DEBOUNCE": func(c *Config, v string) error {
			// Bare numbers are milliseconds.
			if _, err := strconv.Atoi(v); err == nil {
				v += "ms"
			}
			c.Watch.Debounce = v
			return nil
		},
		"MAX_CONCURRENT": func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("not a number: %q", v)
			}
			c.Build.MaxConcurrent = n
			return nil
		},
	}
}

// Variables returns the recognized variable names, with prefix.
func (o *EnvOverlay) Variables() []string {
	names := make([]string, 0, len(o.mapping))
	for name := range o.mapping {
		names = append(names, EnvPrefix+name)
	}
	return names
}

// Apply sets every recognized variable that is present. Empty values are
// ignored.
func (o *EnvOverlay) Apply(c *Config) error {
	var bad []string
	for name, set := range o.mapping {
		v, ok := o.lookup(EnvPrefix + name)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := set(c, strings.TrimSpace(v)); err != nil {
			bad = append(bad, fmt.Sprintf("%s%s: %v", EnvPrefix, name, err))
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("environment: %s", strings.Join(bad, "; "))
	}
	return nil
}
