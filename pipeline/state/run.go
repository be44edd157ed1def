package state

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the aggregate state of one pipeline run
type RunStatus string

const (
	RunStatusRunning         RunStatus = "running"
	RunStatusSucceeded       RunStatus = "succeeded"
	RunStatusPartiallyFailed RunStatus = "partially_failed"
	RunStatusFailed          RunStatus = "failed"
)

// Terminal returns true once the run has reached a final aggregate status.
func (s RunStatus) Terminal() bool {
	return s != RunStatusRunning
}

// PipelineRun is one end-to-end invocation of the agent chain.
// Created by the control surface, mutated only by the execution engine.
type PipelineRun struct {
	ID         string     `json:"id"`
	Status     RunStatus  `json:"status"`
	Force      bool       `json:"force"` // dependency gating bypassed
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Records    []*RunRecord `json:"records,omitempty"`
}

// NewPipelineRun creates a run starting now with a fresh run id.
func NewPipelineRun(force bool) *PipelineRun {
	return &PipelineRun{
		ID:        uuid.New().String(),
		Status:    RunStatusRunning,
		Force:     force,
		StartedAt: time.Now().UTC(),
	}
}

// Finish closes the run with its aggregate status.
func (p *PipelineRun) Finish(status RunStatus) {
	now := time.Now().UTC()
	p.Status = status
	p.FinishedAt = &now
}
