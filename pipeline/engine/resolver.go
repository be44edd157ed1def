// Package engine runs the agent chain in dependency order with per-attempt
// timeouts, bounded retries and durable run state.
package engine

import (
	"time"

	"github.com/teranos/noculars/errors"
	"github.com/teranos/noculars/pipeline/registry"
	"github.com/teranos/noculars/pipeline/state"
)

// Resolver decides whether an agent's dependencies are satisfied.
// It only reads run state; the engine is the sole writer.
type Resolver struct {
	registry *registry.Registry
	store    *state.Store
	maxAge   time.Duration // cross-run freshness window for dependency successes
}

// NewResolver creates a resolver over the given registry and store.
// maxAge bounds how old a dependency's last success may be when the
// dependency did not run within the current pipeline run.
func NewResolver(reg *registry.Registry, store *state.Store, maxAge time.Duration) *Resolver {
	return &Resolver{registry: reg, store: store, maxAge: maxAge}
}

// Check returns nil when every dependency of the agent has succeeded, either
// within the current run (runStatus) or recently enough in an earlier run.
// force bypasses dependency gating entirely. A violated dependency returns a
// wrapped ErrDependencyNotMet naming the dependency; the caller records the
// agent as skipped rather than retrying.
func (r *Resolver) Check(d *registry.Descriptor, runStatus map[string]state.Status, force bool) error {
	if force {
		return nil
	}

	for _, dep := range d.Dependencies {
		if status, ok := runStatus[dep]; ok {
			if status == state.StatusSucceeded {
				continue
			}
			return errors.Wrapf(errors.ErrDependencyNotMet,
				"agent %s requires %s, which is %s in this run", d.Name, dep, status)
		}

		// The dependency did not run in this pipeline run. Accept a
		// sufficiently recent success from an earlier run.
		last, err := r.store.LatestSuccess(dep)
		if err != nil {
			return errors.Wrapf(err, "check dependency %s of %s", dep, d.Name)
		}
		if last == nil || last.FinishedAt == nil {
			return errors.Wrapf(errors.ErrDependencyNotMet,
				"agent %s requires %s, which has never succeeded", d.Name, dep)
		}
		if age := time.Since(*last.FinishedAt); age > r.maxAge {
			return errors.Wrapf(errors.ErrDependencyNotMet,
				"agent %s requires %s, whose last success is %s old (max %s)",
				d.Name, dep, age.Round(time.Second), r.maxAge)
		}
	}
	return nil
}
