package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/noculars/errors"
)

func TestDefaultAgentChain(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	require.Len(t, cfg.Agents, 4)

	pr := cfg.Agents["pattern_recognition"]
	assert.Equal(t, "agents/pattern-recognition/agent.py", pr.Command)
	assert.Equal(t, 300, pr.TimeoutSeconds)
	assert.Equal(t, 3, pr.MaxRetries)
	assert.Equal(t, 900, pr.ScheduleIntervalSeconds)
	assert.Empty(t, pr.Dependencies)

	ie := cfg.Agents["insights_engine"]
	assert.ElementsMatch(t,
		[]string{"pattern_recognition", "business_intelligence", "ab_testing"},
		ie.Dependencies)

	assert.Equal(t, "project_venv/bin/python", cfg.Pipeline.PythonEnv)
	assert.Equal(t, 2*time.Hour, cfg.Pipeline.MaxDependencyAge())
	assert.Zero(t, cfg.Pipeline.Deadline())
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "noculars.toml")
	content := `
[database]
path = "/var/lib/noculars/state.db"

[pipeline]
python_env = "/usr/bin/python3"
deadline_seconds = 1800

[agents.pattern_recognition]
timeout_seconds = 120
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/noculars/state.db", cfg.Database.Path)
	assert.Equal(t, "/usr/bin/python3", cfg.Pipeline.PythonEnv)
	assert.Equal(t, 30*time.Minute, cfg.Pipeline.Deadline())

	// Overridden field takes effect, sibling defaults survive.
	pr := cfg.Agents["pattern_recognition"]
	assert.Equal(t, 120, pr.TimeoutSeconds)
	assert.Equal(t, 3, pr.MaxRetries)
}

func TestLoadFromFileRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "noculars.toml")
	content := `
[agents.pattern_recognition]
timeout_seconds = -5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
}

func TestValidateThresholdBounds(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	cfg.Health.MaxErrorRate = 1.5
	err = cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "noculars.toml")

	cfg, err := Default()
	require.NoError(t, err)
	cfg.Database.Path = "custom.db"

	require.NoError(t, Save(cfg, path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "custom.db", loaded.Database.Path)
	assert.Len(t, loaded.Agents, 4)
}

func TestSaveRotatesBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "noculars.toml")

	cfg, err := Default()
	require.NoError(t, err)

	require.NoError(t, Save(cfg, path))
	require.NoError(t, Save(cfg, path))

	assert.FileExists(t, path+".back1")
}
