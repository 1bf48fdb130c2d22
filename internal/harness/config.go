package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jtbeebe/taxcalc/internal/barrier"
)

// Config describes one regression run shared by all worker processes.
//
// Every worker of a run must load the identical configuration; the only
// per-worker input is the worker index passed to NewSession. Worker roles
// are derived from that index, never from ambient environment inspection.
type Config struct {
	// Dir is the shared directory holding every coordination artifact.
	Dir string `yaml:"dir"`

	// NumReforms is N, the exact number of reform scenarios evaluated.
	NumReforms int `yaml:"num_reforms"`

	// WorkerCount is the number of concurrent worker processes.
	WorkerCount int `yaml:"worker_count"`

	// PollInterval is the sleep between barrier polls.
	// Zero means barrier.DefaultInterval.
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`

	// MaxPolls bounds each barrier wait.
	// Zero means barrier.DefaultMaxPolls.
	MaxPolls int `yaml:"max_polls,omitempty"`

	// Reforms is the directory of CUE reform definitions.
	// Required by the CLI run command, unused by sessions driven with an
	// explicit catalog.
	Reforms string `yaml:"reforms,omitempty"`

	// Archive is an optional SQLite path; when set, the coordinator
	// records the session verdict and aggregated values there.
	Archive string `yaml:"archive,omitempty"`

	// Engine configures the external calculation engine subprocess.
	Engine *EngineConfig `yaml:"engine,omitempty"`
}

// EngineConfig describes how to invoke the external calculation engine.
type EngineConfig struct {
	// Command is the engine binary path.
	Command string `yaml:"command"`

	// Args are fixed arguments placed before the reform id.
	Args []string `yaml:"args,omitempty"`

	// RateLimit caps engine invocations per second across this worker.
	// Zero means unlimited.
	RateLimit float64 `yaml:"rate_limit,omitempty"`
}

// LoadConfig reads and parses a YAML harness configuration file.
// Unknown fields are rejected so typos surface instead of silently
// falling back to defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("dir is required")
	}
	if c.NumReforms < 1 {
		return fmt.Errorf("num_reforms must be at least 1, got %d", c.NumReforms)
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("worker_count must be at least 1, got %d", c.WorkerCount)
	}
	if c.WorkerCount > c.NumReforms {
		return fmt.Errorf("worker_count %d exceeds num_reforms %d: some workers would own no reforms", c.WorkerCount, c.NumReforms)
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("poll_interval must not be negative")
	}
	if c.MaxPolls < 0 {
		return fmt.Errorf("max_polls must not be negative")
	}
	if c.Engine != nil && c.Engine.Command == "" {
		return fmt.Errorf("engine.command is required when engine is configured")
	}
	if c.Engine != nil && c.Engine.RateLimit < 0 {
		return fmt.Errorf("engine.rate_limit must not be negative")
	}
	return nil
}

// pollInterval returns the configured interval or the barrier default.
func (c *Config) pollInterval() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return barrier.DefaultInterval
}

// maxPolls returns the configured ceiling or the barrier default.
func (c *Config) maxPolls() int {
	if c.MaxPolls > 0 {
		return c.MaxPolls
	}
	return barrier.DefaultMaxPolls
}
