// Package config loads and validates the optional .runner YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the config file looked up from the workspace.
const FileName = ".runner"

// Default values for runner configuration.
const (
	DefaultStrategy      = "process"
	DefaultTimeout       = 3 * time.Second
	DefaultMaxOutput     = 1 << 20 // 1 MB
	DefaultMaxLine       = 1 << 20
	DefaultHistory       = 5
	DefaultWatchDebounce = 200 * time.Millisecond
)

// Config holds the parsed .runner configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version          int      `yaml:"version"`
	RawStrategy      string   `yaml:"strategy"`    // "process" or "embedded"
	RawInterpreter   []string `yaml:"interpreter"` // e.g. [node] or [deno, run, --allow-import]
	RawTimeout       string   `yaml:"timeout"`     // e.g. "3s", "1m"
	RawMaxOutput     int      `yaml:"max_output"`  // bytes per run
	RawMaxLine       int      `yaml:"max_line"`    // bytes per stdout line
	RawHistory       int      `yaml:"history"`     // finished runs kept in memory
	RawWatchDebounce string   `yaml:"watch_debounce"`
	RunsDir          string   `yaml:"runs_dir"` // where run records are written; temp dir if empty
}

// Strategy returns the configured execution strategy or the default.
func (c *Config) Strategy() string {
	if c.RawStrategy != "" {
		return c.RawStrategy
	}
	return DefaultStrategy
}

// Interpreter returns the configured interpreter argv, nil for the runner default.
func (c *Config) Interpreter() []string {
	if len(c.RawInterpreter) > 0 {
		return c.RawInterpreter
	}
	return nil
}

// Timeout returns the configured timeout or the default.
func (c *Config) Timeout() time.Duration {
	return parseDuration(c.RawTimeout, DefaultTimeout)
}

// MaxOutputBytes returns the configured max output size or the default.
func (c *Config) MaxOutputBytes() int {
	if c.RawMaxOutput > 0 {
		return c.RawMaxOutput
	}
	return DefaultMaxOutput
}

// MaxLine returns the configured stdout line limit or the default.
func (c *Config) MaxLine() int {
	if c.RawMaxLine > 0 {
		return c.RawMaxLine
	}
	return DefaultMaxLine
}

// History returns how many finished runs are cached in memory.
func (c *Config) History() int {
	if c.RawHistory > 0 {
		return c.RawHistory
	}
	return DefaultHistory
}

// WatchDebounce returns the configured debounce window or the default.
func (c *Config) WatchDebounce() time.Duration {
	return parseDuration(c.RawWatchDebounce, DefaultWatchDebounce)
}

// Validate rejects values that parse but make no sense.
func (c *Config) Validate() error {
	switch c.Strategy() {
	case "process", "embedded":
	default:
		return fmt.Errorf("strategy %q: want process or embedded", c.RawStrategy)
	}
	if c.RawTimeout != "" {
		if d, err := time.ParseDuration(c.RawTimeout); err != nil || d <= 0 {
			return fmt.Errorf("timeout %q: want a positive duration", c.RawTimeout)
		}
	}
	if c.RawWatchDebounce != "" {
		if d, err := time.ParseDuration(c.RawWatchDebounce); err != nil || d < 0 {
			return fmt.Errorf("watch_debounce %q: want a duration", c.RawWatchDebounce)
		}
	}
	return nil
}

func parseDuration(raw string, def time.Duration) time.Duration {
	if raw != "" {
		d, err := time.ParseDuration(raw)
		if err == nil && d > 0 {
			return d
		}
	}
	return def
}

// LoadResult holds the parsed config and the directory it was found in.
type LoadResult struct {
	Config *Config
	Root   string // directory containing .runner; falls back to workspace
}

// Load reads the .runner file nearest to workspace, walking upward.
// If no file exists, a default Config rooted at workspace is returned.
func Load(workspace string) (*LoadResult, error) {
	workspace, err := filepath.Abs(workspace)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace: %w", err)
	}

	path, ok := findConfig(workspace)
	if !ok {
		return &LoadResult{Config: &Config{}, Root: workspace}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", FileName, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", FileName, err)
	}
	return &LoadResult{Config: cfg, Root: filepath.Dir(path)}, nil
}

// findConfig walks upward from dir looking for a .runner file.
func findConfig(dir string) (string, bool) {
	for {
		path := filepath.Join(dir, FileName)
		if st, err := os.Stat(path); err == nil && !st.IsDir() {
			return path, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
