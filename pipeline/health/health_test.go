package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/noculars/config"
	"github.com/teranos/noculars/pipeline/registry"
	"github.com/teranos/noculars/pipeline/state"
	nocularstesting "github.com/teranos/noculars/internal/testing"
)

func testHealthConfig() config.HealthConfig {
	return config.HealthConfig{
		WindowRuns:     10,
		MaxErrorRate:   0.1,
		MinSuccessRate: 0.8,
	}
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	cfg := &config.Config{
		Agents: map[string]config.AgentConfig{
			"pattern_recognition": {
				Command: "noop.py", TimeoutSeconds: 300, MaxRetries: 3,
				BackoffBaseSeconds: 1, BackoffFactor: 2, ScheduleIntervalSeconds: 60,
			},
			"business_intelligence": {
				Command: "noop.py", TimeoutSeconds: 600, MaxRetries: 3,
				BackoffBaseSeconds: 1, BackoffFactor: 2, ScheduleIntervalSeconds: 3600,
				Dependencies: []string{"pattern_recognition"},
			},
		},
	}
	reg, err := registry.Load(cfg)
	require.NoError(t, err)
	return reg
}

func newTestMonitor(t *testing.T) (*Monitor, *state.Store) {
	t.Helper()
	conn := nocularstesting.CreateTestDB(t)
	store := state.NewStore(conn)
	m := NewMonitor(testRegistry(t), store, testHealthConfig(), zaptest.NewLogger(t).Sugar())
	return m, store
}

func seedRun(t *testing.T, store *state.Store) *state.PipelineRun {
	t.Helper()
	run := state.NewPipelineRun(false)
	require.NoError(t, store.CreateRun(run))
	return run
}

func seedAttempt(t *testing.T, store *state.Store, runID, agent string, attempt int, status state.Status, finishedAgo time.Duration) {
	t.Helper()
	rec := state.NewRunningRecord(runID, agent, attempt)
	rec.StartedAt = time.Now().UTC().Add(-finishedAgo - time.Second)
	require.NoError(t, store.AppendRecord(rec))
	msg := ""
	if status == state.StatusFailed || status == state.StatusTimedOut {
		msg = "boom"
	}
	rec.Finish(status, msg)
	finished := time.Now().UTC().Add(-finishedAgo)
	rec.FinishedAt = &finished
	require.NoError(t, store.FinishRecord(rec))
}

func agentByName(t *testing.T, snap *Snapshot, name string) AgentHealth {
	t.Helper()
	for _, ah := range snap.Agents {
		if ah.Name == name {
			return ah
		}
	}
	t.Fatalf("agent %s not in snapshot", name)
	return AgentHealth{}
}

func TestCheckNoHistory(t *testing.T) {
	m, _ := newTestMonitor(t)

	snap, err := m.Check()
	require.NoError(t, err)
	assert.False(t, snap.Healthy)
	assert.Equal(t, 2, snap.TotalAgents)
	assert.Zero(t, snap.HealthyAgents)

	ah := agentByName(t, snap, "pattern_recognition")
	assert.True(t, ah.Stale)
	assert.Equal(t, "no recorded attempts", ah.Reason)
}

func TestCheckHealthyAgents(t *testing.T) {
	m, store := newTestMonitor(t)
	run := seedRun(t, store)

	seedAttempt(t, store, run.ID, "pattern_recognition", 1, state.StatusSucceeded, 30*time.Second)
	seedAttempt(t, store, run.ID, "business_intelligence", 1, state.StatusSucceeded, time.Minute)

	snap, err := m.Check()
	require.NoError(t, err)
	assert.True(t, snap.Healthy)
	assert.Equal(t, 2, snap.HealthyAgents)

	ah := agentByName(t, snap, "pattern_recognition")
	assert.True(t, ah.Healthy)
	assert.False(t, ah.Stale)
	assert.Equal(t, 1.0, ah.SuccessRate)
	assert.Zero(t, ah.ErrorRate)
	require.NotNil(t, ah.LastSuccess)
}

func TestCheckStaleness(t *testing.T) {
	m, store := newTestMonitor(t)
	run := seedRun(t, store)

	// pattern_recognition runs every 60s; a success from 10 minutes ago is
	// well past the 2x cutoff.
	seedAttempt(t, store, run.ID, "pattern_recognition", 1, state.StatusSucceeded, 10*time.Minute)
	// business_intelligence has an hourly cadence, the same age is fine.
	seedAttempt(t, store, run.ID, "business_intelligence", 1, state.StatusSucceeded, 10*time.Minute)

	snap, err := m.Check()
	require.NoError(t, err)

	stale := agentByName(t, snap, "pattern_recognition")
	assert.True(t, stale.Stale)
	assert.False(t, stale.Healthy)

	fresh := agentByName(t, snap, "business_intelligence")
	assert.False(t, fresh.Stale)
	assert.True(t, fresh.Healthy)
}

func TestCheckErrorRateThreshold(t *testing.T) {
	m, store := newTestMonitor(t)
	run := seedRun(t, store)

	// 2 failures out of 10 puts the error rate at 0.2, over the 0.1 cap.
	for i := 1; i <= 10; i++ {
		status := state.StatusSucceeded
		if i <= 2 {
			status = state.StatusFailed
		}
		seedAttempt(t, store, run.ID, "pattern_recognition", 1, status,
			time.Duration(11-i)*time.Second)
	}

	snap, err := m.Check()
	require.NoError(t, err)

	ah := agentByName(t, snap, "pattern_recognition")
	assert.False(t, ah.Healthy)
	assert.InDelta(t, 0.2, ah.ErrorRate, 0.001)
	assert.Equal(t, "error rate above threshold", ah.Reason)
}

func TestCheckSkippedDoesNotCountAsError(t *testing.T) {
	m, store := newTestMonitor(t)
	run := seedRun(t, store)

	seedAttempt(t, store, run.ID, "business_intelligence", 1, state.StatusSucceeded, 2*time.Minute)
	rec := state.NewSkippedRecord(run.ID, "business_intelligence", 2, "dependency did not succeed")
	require.NoError(t, store.AppendRecord(rec))

	snap, err := m.Check()
	require.NoError(t, err)

	ah := agentByName(t, snap, "business_intelligence")
	assert.Zero(t, ah.ErrorRate)
	// Skips still drag the success rate down.
	assert.InDelta(t, 0.5, ah.SuccessRate, 0.001)
	assert.False(t, ah.Healthy)
}

func TestCheckRunningFlag(t *testing.T) {
	m, store := newTestMonitor(t)
	run := seedRun(t, store)

	rec := state.NewRunningRecord(run.ID, "pattern_recognition", 1)
	require.NoError(t, store.AppendRecord(rec))

	snap, err := m.Check()
	require.NoError(t, err)

	assert.True(t, agentByName(t, snap, "pattern_recognition").Running)
	assert.False(t, agentByName(t, snap, "business_intelligence").Running)
}

func TestCheckOverallThreshold(t *testing.T) {
	m, store := newTestMonitor(t)
	run := seedRun(t, store)

	// 1 of 2 healthy is 50%, under the 75% bar.
	seedAttempt(t, store, run.ID, "pattern_recognition", 1, state.StatusSucceeded, 30*time.Second)

	snap, err := m.Check()
	require.NoError(t, err)
	assert.Equal(t, 1, snap.HealthyAgents)
	assert.False(t, snap.Healthy)
}

func TestCheckReportsMemory(t *testing.T) {
	m, _ := newTestMonitor(t)

	snap, err := m.Check()
	require.NoError(t, err)
	require.NotNil(t, snap.Memory)
	assert.Greater(t, snap.Memory.TotalBytes, uint64(0))
}

func TestWatchEmitsAndStops(t *testing.T) {
	m, _ := newTestMonitor(t)

	ctx, cancel := context.WithCancel(context.Background())
	ch := m.Watch(ctx, 10*time.Millisecond)

	first, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, 2, first.TotalAgents)

	second, ok := <-ch
	require.True(t, ok)
	assert.False(t, second.Timestamp.Before(first.Timestamp))

	cancel()
	for range ch {
	}
}
