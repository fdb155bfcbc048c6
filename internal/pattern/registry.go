package pattern

import (
	"sort"
	"sync"
)

// Registry holds the currently published patterns, one per
// (target, type) key. Publication replaces whole Pattern values, so
// readers get consistent snapshots without field-level locking.
type Registry struct {
	mu       sync.RWMutex
	patterns map[string]*Pattern
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{patterns: make(map[string]*Pattern)}
}

// Publish replaces the registry contents with the results of a
// detection run. Keys absent from the new run are dropped: a pattern
// that no longer detects is no longer published.
func (r *Registry) Publish(patterns []*Pattern) {
	next := make(map[string]*Pattern, len(patterns))
	for _, p := range patterns {
		next[p.Key()] = p
	}

	r.mu.Lock()
	r.patterns = next
	r.mu.Unlock()
}

// Snapshot returns all published patterns sorted by key.
func (r *Registry) Snapshot() []*Pattern {
	r.mu.RLock()
	out := make([]*Pattern, 0, len(r.patterns))
	for _, p := range r.patterns {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// ForTarget returns the published patterns affecting a target.
func (r *Registry) ForTarget(target string) []*Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Pattern
	for _, p := range r.patterns {
		if p.Target == target {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Get returns the published pattern with the given ID, or nil.
func (r *Registry) Get(id string) *Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.patterns {
		if p.ID == id {
			return p
		}
	}
	return nil
}
