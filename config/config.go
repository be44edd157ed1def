// Package config manages the Noculars pipeline configuration.
package config

import "time"

// Config represents the pipeline orchestrator configuration
type Config struct {
	Database DatabaseConfig         `mapstructure:"database"`
	Logging  LoggingConfig          `mapstructure:"logging"`
	Pipeline PipelineConfig         `mapstructure:"pipeline"`
	Health   HealthConfig           `mapstructure:"health"`
	Agents   map[string]AgentConfig `mapstructure:"agents"`
}

// DatabaseConfig configures the SQLite run state store
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig configures structured log output
type LoggingConfig struct {
	Path string `mapstructure:"path"` // log file path, empty = stdout only
	JSON bool   `mapstructure:"json"` // machine-readable output
}

// PipelineConfig configures engine-wide execution policy
type PipelineConfig struct {
	// PythonEnv is the interpreter used to invoke bare .py agent commands
	PythonEnv string `mapstructure:"python_env"`

	// MaxDependencyAgeSeconds bounds how old a dependency's last success may
	// be (from a previous run) and still satisfy the dependency gate.
	MaxDependencyAgeSeconds int `mapstructure:"max_dependency_age_seconds"`

	// DeadlineSeconds is an optional overall pipeline deadline. 0 = none.
	DeadlineSeconds int `mapstructure:"deadline_seconds"`

	// StoreWriteRetries bounds retries of a failed run-state write before
	// the engine aborts the run.
	StoreWriteRetries int `mapstructure:"store_write_retries"`
}

// HealthConfig configures monitor thresholds
type HealthConfig struct {
	WindowRuns     int     `mapstructure:"window_runs"`      // terminal attempts per agent considered for rates
	MaxErrorRate   float64 `mapstructure:"max_error_rate"`   // above this an agent is unhealthy
	MinSuccessRate float64 `mapstructure:"min_success_rate"` // below this an agent is unhealthy
}

// AgentConfig configures a single agent descriptor. Zero values fall back to
// the built-in defaults for the known agents.
type AgentConfig struct {
	Command                 string   `mapstructure:"command"`
	TimeoutSeconds          int      `mapstructure:"timeout_seconds"`
	MaxRetries              int      `mapstructure:"max_retries"`
	BackoffBaseSeconds      float64  `mapstructure:"backoff_base_seconds"`
	BackoffFactor           float64  `mapstructure:"backoff_factor"`
	ScheduleIntervalSeconds int      `mapstructure:"schedule_interval_seconds"`
	Dependencies            []string `mapstructure:"dependencies"`
}

// MaxDependencyAge returns the cross-run dependency freshness window.
func (c *PipelineConfig) MaxDependencyAge() time.Duration {
	return time.Duration(c.MaxDependencyAgeSeconds) * time.Second
}

// Deadline returns the overall pipeline deadline, or 0 when unset.
func (c *PipelineConfig) Deadline() time.Duration {
	return time.Duration(c.DeadlineSeconds) * time.Second
}
