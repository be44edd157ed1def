package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New("test error")
	require.NotNil(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestWrapPreservesSentinel(t *testing.T) {
	err := Wrap(ErrAgentTimeout, "pattern_recognition attempt 2")

	assert.Contains(t, err.Error(), "pattern_recognition attempt 2")
	assert.True(t, Is(err, ErrAgentTimeout))
	assert.False(t, Is(err, ErrAgentExecution))
}

func TestTaxonomyHelpers(t *testing.T) {
	assert.True(t, IsConfigError(Wrap(ErrConfig, "cycle detected")))
	assert.True(t, IsStoreWriteError(Wrapf(ErrStoreWrite, "append record for %s", "ab_testing")))
	assert.True(t, IsAgentTimeoutError(Wrap(ErrAgentTimeout, "deadline")))
	assert.True(t, IsRunLockedError(Wrap(ErrRunLocked, "run abc")))
	assert.True(t, IsNotFoundError(NewNotFoundError("agent %q", "mouse_tracker")))

	// Helpers never match across categories or on nil.
	assert.False(t, IsConfigError(nil))
	assert.False(t, IsStoreWriteError(Wrap(ErrAgentExecution, "exit status 1")))
}

func TestNewConfigError(t *testing.T) {
	err := NewConfigError("agent %q depends on unknown agent %q", "ab_testing", "ghost")
	require.True(t, IsConfigError(err))
	assert.Contains(t, err.Error(), `"ghost"`)
}

func TestDetailsSurviveWrapping(t *testing.T) {
	err := New("agent exited with code 2")
	err = WithDetail(err, "Agent: insights_engine")
	err = Wrap(err, "pipeline attempt failed")

	details := GetAllDetails(err)
	require.Len(t, details, 1)
	assert.Equal(t, "Agent: insights_engine", details[0])
}
