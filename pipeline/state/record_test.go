package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusSucceeded.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusTimedOut.Terminal())
	assert.True(t, StatusSkipped.Terminal())
}

func TestIsValidStatus(t *testing.T) {
	assert.True(t, IsValidStatus("running"))
	assert.True(t, IsValidStatus("timed_out"))
	assert.False(t, IsValidStatus("exploded"))
	assert.False(t, IsValidStatus(""))
}

func TestFinishSetsDurationAndError(t *testing.T) {
	rec := NewRunningRecord("run-1", "pattern_recognition", 1)
	rec.StartedAt = time.Now().UTC().Add(-2 * time.Second)

	rec.Finish(StatusFailed, "exit status 1")
	assert.Equal(t, StatusFailed, rec.Status)
	require.NotNil(t, rec.FinishedAt)
	require.NotNil(t, rec.DurationMs)
	assert.GreaterOrEqual(t, *rec.DurationMs, 2000)
	assert.Equal(t, "exit status 1", rec.ErrorMessage)
}

func TestFinishClearsErrorOnSuccess(t *testing.T) {
	rec := NewRunningRecord("run-1", "pattern_recognition", 1)
	rec.Finish(StatusSucceeded, "ignored")
	assert.Empty(t, rec.ErrorMessage)
}

func TestNewSkippedRecordIsTerminal(t *testing.T) {
	rec := NewSkippedRecord("run-1", "insights_engine", 1, "dependency ab_testing did not succeed")
	assert.True(t, rec.Status.Terminal())
	require.NotNil(t, rec.FinishedAt)
	require.NotNil(t, rec.DurationMs)
	assert.Zero(t, *rec.DurationMs)
	assert.Contains(t, rec.ErrorMessage, "ab_testing")
}

func TestRunStatusTerminal(t *testing.T) {
	assert.False(t, RunStatusRunning.Terminal())
	assert.True(t, RunStatusSucceeded.Terminal())
	assert.True(t, RunStatusPartiallyFailed.Terminal())
	assert.True(t, RunStatusFailed.Terminal())
}
