package derived

import (
	"sort"

	"github.com/jamestiotio/sapling/src/internal/errors"
)

// Registry is a static catalogue of kinds.  The intra-changeset dependency
// relation among registered kinds is validated to be acyclic at construction,
// so the scheduler can order sibling-kind work without re-checking.
type Registry struct {
	kinds map[string]Kind
	order []string // topological: dependencies before dependents
}

// NewRegistry builds a registry from the given kinds.  It fails on duplicate
// names, dependencies on unregistered kinds, and dependency cycles.
func NewRegistry(kinds ...Kind) (*Registry, error) {
	byName := make(map[string]Kind, len(kinds))
	for _, k := range kinds {
		if k.Name == "" {
			return nil, errors.New("kind with empty name")
		}
		if _, ok := byName[k.Name]; ok {
			return nil, errors.Errorf("kind %q registered twice", k.Name)
		}
		byName[k.Name] = k
	}
	for _, k := range byName {
		for _, dep := range k.Deps {
			if _, ok := byName[dep]; !ok {
				return nil, errors.Errorf("kind %q depends on unregistered kind %q", k.Name, dep)
			}
			if dep == k.Name {
				return nil, errors.Errorf("kind %q depends on itself", k.Name)
			}
		}
	}
	order, err := topoSort(byName)
	if err != nil {
		return nil, err
	}
	return &Registry{kinds: byName, order: order}, nil
}

// Get returns the named kind, or an UnknownKindError.
func (r *Registry) Get(name string) (Kind, error) {
	k, ok := r.kinds[name]
	if !ok {
		return Kind{}, errors.EnsureStack(&UnknownKindError{Name: name})
	}
	return k, nil
}

// Names returns all kind names, dependencies before dependents.
func (r *Registry) Names() []string {
	return append([]string{}, r.order...)
}

// topoSort is Kahn's algorithm over the intra-kind dependency edges.
// Ties are broken by name so the order is stable.
func topoSort(kinds map[string]Kind) ([]string, error) {
	indegree := make(map[string]int, len(kinds))
	dependents := make(map[string][]string, len(kinds))
	for name, k := range kinds {
		indegree[name] += 0
		for _, dep := range k.Deps {
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}
	var ready []string
	for name, d := range indegree {
		if d == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)
	var order []string
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)
		next := dependents[name]
		sort.Strings(next)
		for _, dependent := range next {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}
	if len(order) != len(kinds) {
		var stuck []string
		for name, d := range indegree {
			if d > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, errors.Errorf("dependency cycle among kinds %v", stuck)
	}
	return order, nil
}
