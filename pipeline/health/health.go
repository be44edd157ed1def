// Package health derives a read-only health snapshot of the pipeline from
// persisted run state. It never mutates runs or records.
package health

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/teranos/noculars/config"
	"github.com/teranos/noculars/errors"
	"github.com/teranos/noculars/pipeline/registry"
	"github.com/teranos/noculars/pipeline/state"
)

// overallHealthyFraction is the share of healthy agents required for the
// pipeline as a whole to report healthy.
const overallHealthyFraction = 0.75

// stalenessFactor multiplies an agent's schedule interval to get its
// staleness cutoff: no success within factor * interval means stale.
const stalenessFactor = 2

// AgentHealth is the derived health of one agent.
type AgentHealth struct {
	Name        string     `json:"name"`
	Healthy     bool       `json:"healthy"`
	Running     bool       `json:"running"`
	Stale       bool       `json:"stale"`
	LastStatus  string     `json:"last_status,omitempty"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
	SuccessRate float64    `json:"success_rate"`
	ErrorRate   float64    `json:"error_rate"`
	WindowSize  int        `json:"window_size"`
	Reason      string     `json:"reason,omitempty"`
}

// MemoryStats is a point-in-time view of system memory.
type MemoryStats struct {
	TotalBytes  uint64  `json:"total_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// Snapshot is a point-in-time view of the whole pipeline's health.
type Snapshot struct {
	Timestamp     time.Time     `json:"timestamp"`
	Healthy       bool          `json:"healthy"`
	HealthyAgents int           `json:"healthy_agents"`
	TotalAgents   int           `json:"total_agents"`
	Agents        []AgentHealth `json:"agents"`
	Memory        *MemoryStats  `json:"memory,omitempty"`
}

// Monitor computes health snapshots from run state.
type Monitor struct {
	registry *registry.Registry
	store    *state.Store
	cfg      config.HealthConfig
	log      *zap.SugaredLogger

	now func() time.Time
}

// NewMonitor creates a monitor over the given registry and store.
func NewMonitor(reg *registry.Registry, store *state.Store, cfg config.HealthConfig, log *zap.SugaredLogger) *Monitor {
	return &Monitor{registry: reg, store: store, cfg: cfg, log: log, now: time.Now}
}

// Check computes a snapshot from the most recent terminal attempts of every
// agent. An agent is healthy when its windowed success rate meets the
// configured floor, its error rate stays under the ceiling, and its last
// success is within twice its schedule interval.
func (m *Monitor) Check() (*Snapshot, error) {
	running, err := m.store.RunningAgents()
	if err != nil {
		return nil, errors.Wrap(err, "check running agents")
	}

	snap := &Snapshot{Timestamp: m.now().UTC()}
	for _, d := range m.registry.List() {
		ah, err := m.agentHealth(d, running[d.Name])
		if err != nil {
			return nil, err
		}
		snap.Agents = append(snap.Agents, *ah)
		if ah.Healthy {
			snap.HealthyAgents++
		}
	}
	snap.TotalAgents = len(snap.Agents)
	snap.Healthy = snap.TotalAgents > 0 &&
		float64(snap.HealthyAgents) >= overallHealthyFraction*float64(snap.TotalAgents)

	if vm, err := mem.VirtualMemory(); err == nil {
		snap.Memory = &MemoryStats{
			TotalBytes:  vm.Total,
			UsedBytes:   vm.Used,
			UsedPercent: vm.UsedPercent,
		}
	} else {
		m.log.Debugw("Memory stats unavailable", "error", err.Error())
	}

	return snap, nil
}

func (m *Monitor) agentHealth(d *registry.Descriptor, running bool) (*AgentHealth, error) {
	ah := &AgentHealth{Name: d.Name, Running: running}

	window, err := m.store.RecentTerminal(d.Name, m.cfg.WindowRuns)
	if err != nil {
		return nil, errors.Wrapf(err, "health window for %s", d.Name)
	}
	ah.WindowSize = len(window)
	if len(window) > 0 {
		ah.LastStatus = string(window[0].Status)
	}

	lastSuccess, err := m.store.LatestSuccess(d.Name)
	if err != nil {
		return nil, errors.Wrapf(err, "last success for %s", d.Name)
	}
	if lastSuccess != nil {
		ah.LastSuccess = lastSuccess.FinishedAt
	}

	if len(window) == 0 {
		ah.Stale = true
		ah.Reason = "no recorded attempts"
		return ah, nil
	}

	succeeded, failed := 0, 0
	for _, rec := range window {
		switch rec.Status {
		case state.StatusSucceeded:
			succeeded++
		case state.StatusFailed, state.StatusTimedOut:
			failed++
		}
	}
	ah.SuccessRate = float64(succeeded) / float64(len(window))
	ah.ErrorRate = float64(failed) / float64(len(window))

	cutoff := time.Duration(stalenessFactor) * d.ScheduleInterval
	switch {
	case ah.LastSuccess == nil:
		ah.Stale = true
		ah.Reason = "never succeeded"
	case m.now().Sub(*ah.LastSuccess) > cutoff:
		ah.Stale = true
		ah.Reason = "last success older than " + cutoff.String()
	}

	switch {
	case ah.Stale:
	case ah.ErrorRate > m.cfg.MaxErrorRate:
		ah.Reason = "error rate above threshold"
	case ah.SuccessRate < m.cfg.MinSuccessRate:
		ah.Reason = "success rate below threshold"
	default:
		ah.Healthy = true
	}
	return ah, nil
}

// Watch emits a snapshot immediately and then at every interval until ctx
// is canceled. The channel is closed on return.
func (m *Monitor) Watch(ctx context.Context, interval time.Duration) <-chan *Snapshot {
	out := make(chan *Snapshot)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			snap, err := m.Check()
			if err != nil {
				m.log.Warnw("Health check failed", "error", err.Error())
			} else {
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
