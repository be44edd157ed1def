package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/noculars/config"
	"github.com/teranos/noculars/errors"
)

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	return cfg
}

func TestLoadDefaultChain(t *testing.T) {
	r, err := Load(defaultConfig(t))
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"pattern_recognition", "business_intelligence", "ab_testing", "insights_engine"},
		r.Names())

	pr, err := r.Get("pattern_recognition")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, pr.Timeout)
	assert.Equal(t, 3, pr.MaxRetries)
	assert.Equal(t, 15*time.Minute, pr.ScheduleInterval)

	ab, err := r.Get("ab_testing")
	require.NoError(t, err)
	assert.Equal(t, []string{"business_intelligence"}, ab.Dependencies)
	assert.Equal(t, 2, ab.MaxRetries)
}

func TestGetUnknownAgent(t *testing.T) {
	r, err := Load(defaultConfig(t))
	require.NoError(t, err)

	_, err = r.Get("mouse_tracker")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestUnknownDependencyRejected(t *testing.T) {
	cfg := defaultConfig(t)
	agent := cfg.Agents["ab_testing"]
	agent.Dependencies = []string{"ghost_agent"}
	cfg.Agents["ab_testing"] = agent

	_, err := Load(cfg)
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
	assert.Contains(t, err.Error(), "ghost_agent")
}

func TestDependencyCycleRejected(t *testing.T) {
	cfg := defaultConfig(t)
	agent := cfg.Agents["pattern_recognition"]
	agent.Dependencies = []string{"insights_engine"}
	cfg.Agents["pattern_recognition"] = agent

	_, err := Load(cfg)
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
	assert.Contains(t, err.Error(), "cycle")
}

func TestSelfDependencyRejected(t *testing.T) {
	cfg := defaultConfig(t)
	agent := cfg.Agents["ab_testing"]
	agent.Dependencies = []string{"ab_testing"}
	cfg.Agents["ab_testing"] = agent

	_, err := Load(cfg)
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
}

func TestDependents(t *testing.T) {
	r, err := Load(defaultConfig(t))
	require.NoError(t, err)

	// Everything downstream of the first agent.
	assert.Equal(t,
		[]string{"business_intelligence", "ab_testing", "insights_engine"},
		r.Dependents("pattern_recognition"))

	// Only the aggregator depends on ab_testing.
	assert.Equal(t, []string{"insights_engine"}, r.Dependents("ab_testing"))

	// The sink has no dependents.
	assert.Empty(t, r.Dependents("insights_engine"))
}

func TestExtraConfiguredAgentAppended(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Agents["page_analyzer"] = config.AgentConfig{
		Command:                 "agents/page-analyzer/agent.py",
		TimeoutSeconds:          300,
		MaxRetries:              2,
		BackoffBaseSeconds:      2,
		BackoffFactor:           2,
		ScheduleIntervalSeconds: 3600,
		Dependencies:            []string{"pattern_recognition"},
	}

	r, err := Load(cfg)
	require.NoError(t, err)

	names := r.Names()
	require.Len(t, names, 5)
	assert.Equal(t, "page_analyzer", names[4])
	assert.Contains(t, r.Dependents("pattern_recognition"), "page_analyzer")
}
