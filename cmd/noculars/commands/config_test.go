package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teranos/noculars/config"
)

func TestOrderedAgentNamesChainOrder(t *testing.T) {
	agent := func(deps ...string) config.AgentConfig {
		return config.AgentConfig{
			Command: "noop.py", TimeoutSeconds: 60, MaxRetries: 1,
			BackoffBaseSeconds: 1, BackoffFactor: 2, ScheduleIntervalSeconds: 60,
			Dependencies: deps,
		}
	}
	cfg := &config.Config{
		Agents: map[string]config.AgentConfig{
			"insights_engine":       agent("ab_testing"),
			"ab_testing":            agent("business_intelligence"),
			"pattern_recognition":   agent(),
			"business_intelligence": agent("pattern_recognition"),
			"zz_extra":              agent(),
		},
	}

	assert.Equal(t, []string{
		"pattern_recognition",
		"business_intelligence",
		"ab_testing",
		"insights_engine",
		"zz_extra",
	}, orderedAgentNames(cfg))
}

func TestOrderedAgentNamesInvalidGraphSortsByName(t *testing.T) {
	cfg := &config.Config{
		Agents: map[string]config.AgentConfig{
			"beta":  {Command: "b.py", Dependencies: []string{"alpha"}},
			"alpha": {Command: "a.py", Dependencies: []string{"beta"}},
		},
	}

	assert.Equal(t, []string{"alpha", "beta"}, orderedAgentNames(cfg))
}
