// Package state persists pipeline runs and per-attempt run records.
// The execution engine is the only writer; the dependency resolver and the
// health monitor are read-only consumers.
package state

import (
	"time"

	"github.com/google/uuid"

	"github.com/teranos/noculars/internal/util"
)

// Status represents the state of one agent attempt
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
	StatusSkipped   Status = "skipped"
)

// Terminal returns true for statuses the engine will not re-attempt
// within the same run.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusTimedOut, StatusSkipped:
		return true
	default:
		return false
	}
}

// IsValidStatus returns true if the status string is a valid Status
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusPending, StatusRunning, StatusSucceeded,
		StatusFailed, StatusTimedOut, StatusSkipped:
		return true
	default:
		return false
	}
}

// RunRecord is one agent attempt within a pipeline run.
type RunRecord struct {
	ID           string     `json:"id"`
	RunID        string     `json:"run_id"`
	AgentName    string     `json:"agent_name"`
	Status       Status     `json:"status"`
	Attempt      int        `json:"attempt"` // 1-based
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	DurationMs   *int       `json:"duration_ms,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// NewRunningRecord creates a record for an attempt that is starting now.
func NewRunningRecord(runID, agentName string, attempt int) *RunRecord {
	return &RunRecord{
		ID:        uuid.New().String(),
		RunID:     runID,
		AgentName: agentName,
		Status:    StatusRunning,
		Attempt:   attempt,
		StartedAt: time.Now().UTC(),
	}
}

// NewSkippedRecord creates a terminal record for an agent that never ran
// because an upstream dependency failed.
func NewSkippedRecord(runID, agentName string, attempt int, reason string) *RunRecord {
	now := time.Now().UTC()
	return &RunRecord{
		ID:           uuid.New().String(),
		RunID:        runID,
		AgentName:    agentName,
		Status:       StatusSkipped,
		Attempt:      attempt,
		StartedAt:    now,
		FinishedAt:   &now,
		DurationMs:   util.Ptr(0),
		ErrorMessage: reason,
	}
}

// Finish closes the record with a terminal status. ErrorMessage is set only
// for failed and timed-out outcomes.
func (r *RunRecord) Finish(status Status, errMsg string) {
	now := time.Now().UTC()
	r.Status = status
	r.FinishedAt = &now
	r.DurationMs = util.Ptr(int(now.Sub(r.StartedAt).Milliseconds()))
	if status == StatusFailed || status == StatusTimedOut {
		r.ErrorMessage = errMsg
	} else {
		r.ErrorMessage = ""
	}
}
