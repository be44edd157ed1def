package config

import "github.com/teranos/noculars/errors"

// Validate checks that the configuration is valid.
// Graph-level validation (unknown dependencies, cycles) happens when the
// agent registry is built; this covers per-option value checks.
func (c *Config) Validate() error {
	if c.Pipeline.MaxDependencyAgeSeconds < 0 {
		return errors.NewConfigError("pipeline.max_dependency_age_seconds must be >= 0, got %d", c.Pipeline.MaxDependencyAgeSeconds)
	}
	if c.Pipeline.DeadlineSeconds < 0 {
		return errors.NewConfigError("pipeline.deadline_seconds must be >= 0, got %d", c.Pipeline.DeadlineSeconds)
	}
	if c.Pipeline.StoreWriteRetries < 0 {
		return errors.NewConfigError("pipeline.store_write_retries must be >= 0, got %d", c.Pipeline.StoreWriteRetries)
	}

	if c.Health.WindowRuns <= 0 {
		return errors.NewConfigError("health.window_runs must be > 0, got %d", c.Health.WindowRuns)
	}
	if c.Health.MaxErrorRate < 0 || c.Health.MaxErrorRate > 1 {
		return errors.NewConfigError("health.max_error_rate must be in [0,1], got %f", c.Health.MaxErrorRate)
	}
	if c.Health.MinSuccessRate < 0 || c.Health.MinSuccessRate > 1 {
		return errors.NewConfigError("health.min_success_rate must be in [0,1], got %f", c.Health.MinSuccessRate)
	}

	for name, agent := range c.Agents {
		if agent.Command == "" {
			return errors.NewConfigError("agents.%s.command cannot be empty", name)
		}
		if agent.TimeoutSeconds <= 0 {
			return errors.NewConfigError("agents.%s.timeout_seconds must be > 0, got %d", name, agent.TimeoutSeconds)
		}
		if agent.MaxRetries <= 0 {
			return errors.NewConfigError("agents.%s.max_retries must be > 0, got %d", name, agent.MaxRetries)
		}
		if agent.BackoffBaseSeconds < 0 {
			return errors.NewConfigError("agents.%s.backoff_base_seconds must be >= 0, got %f", name, agent.BackoffBaseSeconds)
		}
		if agent.BackoffFactor < 1 {
			return errors.NewConfigError("agents.%s.backoff_factor must be >= 1, got %f", name, agent.BackoffFactor)
		}
		if agent.ScheduleIntervalSeconds <= 0 {
			return errors.NewConfigError("agents.%s.schedule_interval_seconds must be > 0, got %d", name, agent.ScheduleIntervalSeconds)
		}
	}

	return nil
}
