package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options.
// The agent table mirrors the production 4-agent analysis chain.
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "noculars.db")

	// Logging defaults
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.json", false)

	// Pipeline defaults
	v.SetDefault("pipeline.python_env", "project_venv/bin/python")
	v.SetDefault("pipeline.max_dependency_age_seconds", 7200) // dependencies must be fresh within 2 hours
	v.SetDefault("pipeline.deadline_seconds", 0)              // no overall deadline
	v.SetDefault("pipeline.store_write_retries", 3)

	// Health monitor defaults
	v.SetDefault("health.window_runs", 20)
	v.SetDefault("health.max_error_rate", 0.1)    // 10% error rate threshold
	v.SetDefault("health.min_success_rate", 0.8)  // 80% success rate threshold

	// Agent chain defaults
	v.SetDefault("agents.pattern_recognition.command", "agents/pattern-recognition/agent.py")
	v.SetDefault("agents.pattern_recognition.timeout_seconds", 300)
	v.SetDefault("agents.pattern_recognition.max_retries", 3)
	v.SetDefault("agents.pattern_recognition.backoff_base_seconds", 2.0)
	v.SetDefault("agents.pattern_recognition.backoff_factor", 2.0)
	v.SetDefault("agents.pattern_recognition.schedule_interval_seconds", 900)
	v.SetDefault("agents.pattern_recognition.dependencies", []string{})

	v.SetDefault("agents.business_intelligence.command", "agents/business-intelligence/agent.py")
	v.SetDefault("agents.business_intelligence.timeout_seconds", 600)
	v.SetDefault("agents.business_intelligence.max_retries", 3)
	v.SetDefault("agents.business_intelligence.backoff_base_seconds", 2.0)
	v.SetDefault("agents.business_intelligence.backoff_factor", 2.0)
	v.SetDefault("agents.business_intelligence.schedule_interval_seconds", 3600)
	v.SetDefault("agents.business_intelligence.dependencies", []string{"pattern_recognition"})

	v.SetDefault("agents.ab_testing.command", "agents/ab-testing/agent.py")
	v.SetDefault("agents.ab_testing.timeout_seconds", 900)
	v.SetDefault("agents.ab_testing.max_retries", 2)
	v.SetDefault("agents.ab_testing.backoff_base_seconds", 2.0)
	v.SetDefault("agents.ab_testing.backoff_factor", 2.0)
	v.SetDefault("agents.ab_testing.schedule_interval_seconds", 86400)
	v.SetDefault("agents.ab_testing.dependencies", []string{"business_intelligence"})

	v.SetDefault("agents.insights_engine.command", "agents/insights-engine/agent.py")
	v.SetDefault("agents.insights_engine.timeout_seconds", 600)
	v.SetDefault("agents.insights_engine.max_retries", 3)
	v.SetDefault("agents.insights_engine.backoff_base_seconds", 2.0)
	v.SetDefault("agents.insights_engine.backoff_factor", 2.0)
	v.SetDefault("agents.insights_engine.schedule_interval_seconds", 3600)
	v.SetDefault("agents.insights_engine.dependencies", []string{"pattern_recognition", "business_intelligence", "ab_testing"})
}
