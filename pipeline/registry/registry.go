// Package registry holds the static agent descriptors for the analysis
// pipeline and validates the dependency graph at load time.
package registry

import (
	"sort"
	"time"

	"github.com/teranos/noculars/config"
	"github.com/teranos/noculars/errors"
)

// Descriptor is the immutable definition of one pipeline agent.
type Descriptor struct {
	Name             string
	Command          string // opaque invocation string, shell-quoted argv
	Dependencies     []string
	Timeout          time.Duration
	MaxRetries       int // total attempt cap, >= 1
	BackoffBase      time.Duration
	BackoffFactor    float64
	ScheduleInterval time.Duration // expected run cadence, drives staleness
}

// chainOrder is the declaration order of the built-in analysis chain.
// Agents added through configuration are appended after these, sorted by name.
var chainOrder = []string{
	"pattern_recognition",
	"business_intelligence",
	"ab_testing",
	"insights_engine",
}

// Registry is an ordered, validated set of agent descriptors.
// Loaded once per process start; descriptors are never mutated afterwards.
type Registry struct {
	ordered []*Descriptor
	byName  map[string]*Descriptor
}

// Load builds the registry from configuration and validates that every
// named dependency exists and the graph is acyclic. Validation failures
// return a wrapped ErrConfig: fatal, never retried.
func Load(cfg *config.Config) (*Registry, error) {
	names := make([]string, 0, len(cfg.Agents))
	seen := make(map[string]bool, len(cfg.Agents))
	for _, name := range chainOrder {
		if _, ok := cfg.Agents[name]; ok {
			names = append(names, name)
			seen[name] = true
		}
	}
	var extra []string
	for name := range cfg.Agents {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	names = append(names, extra...)

	r := &Registry{byName: make(map[string]*Descriptor, len(names))}
	for _, name := range names {
		ac := cfg.Agents[name]
		d := &Descriptor{
			Name:             name,
			Command:          ac.Command,
			Dependencies:     append([]string(nil), ac.Dependencies...),
			Timeout:          time.Duration(ac.TimeoutSeconds) * time.Second,
			MaxRetries:       ac.MaxRetries,
			BackoffBase:      time.Duration(ac.BackoffBaseSeconds * float64(time.Second)),
			BackoffFactor:    ac.BackoffFactor,
			ScheduleInterval: time.Duration(ac.ScheduleIntervalSeconds) * time.Second,
		}
		r.ordered = append(r.ordered, d)
		r.byName[name] = d
	}

	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// List returns all descriptors in declaration order.
func (r *Registry) List() []*Descriptor {
	out := make([]*Descriptor, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Get returns the descriptor for the named agent.
func (r *Registry) Get(name string) (*Descriptor, error) {
	d, ok := r.byName[name]
	if !ok {
		return nil, errors.NewNotFoundError("agent %q is not registered", name)
	}
	return d, nil
}

// Names returns all agent names in declaration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.ordered))
	for i, d := range r.ordered {
		names[i] = d.Name
	}
	return names
}

// Dependents returns the names of agents that transitively depend on the
// named agent, in declaration order. Used for skip propagation.
func (r *Registry) Dependents(name string) []string {
	affected := map[string]bool{name: true}
	// Iterate to a fixed point: declaration order is not guaranteed to be
	// topological once config adds agents beyond the built-in chain.
	for changed := true; changed; {
		changed = false
		for _, d := range r.ordered {
			if affected[d.Name] {
				continue
			}
			for _, dep := range d.Dependencies {
				if affected[dep] {
					affected[d.Name] = true
					changed = true
					break
				}
			}
		}
	}

	var out []string
	for _, d := range r.ordered {
		if d.Name != name && affected[d.Name] {
			out = append(out, d.Name)
		}
	}
	return out
}

// validate checks that every dependency exists and the graph is acyclic.
func (r *Registry) validate() error {
	for _, d := range r.ordered {
		for _, dep := range d.Dependencies {
			if dep == d.Name {
				return errors.NewConfigError("agent %q depends on itself", d.Name)
			}
			if _, ok := r.byName[dep]; !ok {
				return errors.NewConfigError("agent %q depends on unknown agent %q", d.Name, dep)
			}
		}
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(r.byName))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case visiting:
			return errors.NewConfigError("dependency cycle involving agent %q", name)
		case done:
			return nil
		}
		state[name] = visiting
		for _, dep := range r.byName[name].Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}

	for _, d := range r.ordered {
		if err := visit(d.Name); err != nil {
			return err
		}
	}
	return nil
}
