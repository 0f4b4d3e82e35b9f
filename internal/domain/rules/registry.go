package rules

import (
	"fmt"
	"slices"
	"sync"
)

// Registry is a publish-once store of rule sets keyed by version.
type Registry struct {
	mu   sync.RWMutex
	sets map[int]*RuleSet
}

// NewRegistry returns a registry seeded with sets.
func NewRegistry(sets ...*RuleSet) (*Registry, error) {
	r := &Registry{sets: make(map[int]*RuleSet, len(sets))}
	for _, rs := range sets {
		if err := r.Publish(rs); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Publish adds rs. Republishing identical content is a no-op; a different
// table under an existing version is rejected.
func (r *Registry) Publish(rs *RuleSet) error {
	if rs == nil {
		return fmt.Errorf("%w: nil rule set", ErrInvalidRuleSet)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sets[rs.version]; ok {
		if cur.Equal(rs) {
			return nil
		}
		return fmt.Errorf("%w: v%d", ErrAlreadyExists, rs.version)
	}
	r.sets[rs.version] = rs
	return nil
}

// Get returns the rule set for version.
func (r *Registry) Get(version int) (*RuleSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rs, ok := r.sets[version]
	if !ok {
		return nil, fmt.Errorf("%w: v%d", ErrNotFound, version)
	}
	return rs, nil
}

// Versions returns every published version, ascending.
func (r *Registry) Versions() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int, 0, len(r.sets))
	for v := range r.sets {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// Latest returns the highest published version.
func (r *Registry) Latest() (*RuleSet, error) {
	vs := r.Versions()
	if len(vs) == 0 {
		return nil, fmt.Errorf("%w: registry is empty", ErrNotFound)
	}
	return r.Get(vs[len(vs)-1])
}
