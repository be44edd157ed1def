package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize(t *testing.T) {
	require.NoError(t, Initialize(false))
	require.NotNil(t, Logger)
	assert.False(t, JSONOutput)

	require.NoError(t, Initialize(true))
	assert.True(t, JSONOutput)
}

func TestInitializeWithFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "pipeline.log")
	require.NoError(t, InitializeWithFile(false, logPath))

	Logger.Infow("run started", "run_id", "test-run")
	Sync()

	// File is created on initialization even before the first write flushes.
	assert.FileExists(t, logPath)
}

func TestInitializeWithBadFilePath(t *testing.T) {
	err := InitializeWithFile(false, filepath.Join(t.TempDir(), "missing", "pipeline.log"))
	require.Error(t, err)
}
