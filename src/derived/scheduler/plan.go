package scheduler

import (
	"context"

	"github.com/jamestiotio/sapling/src/commitgraph"
	"github.com/jamestiotio/sapling/src/derived"
	"github.com/jamestiotio/sapling/src/derived/mapstore"
	"github.com/jamestiotio/sapling/src/internal/errors"
)

// nodeKey identifies one unit of derivation work.
type nodeKey struct {
	id   commitgraph.ID
	kind string
}

func (k nodeKey) String() string {
	return k.kind + "@" + k.id.HexString()
}

type node struct {
	key  nodeKey
	cs   *commitgraph.Changeset
	kind derived.Kind
	// prereqs are the keys this node needs derived first; keys whose mapping
	// already exists are dropped when edges are built.
	prereqs []nodeKey
	// forced targets recompute and overwrite even though a mapping exists.
	forced bool

	indegree int
	err      error
}

// plan is the set of underived (changeset, kind) pairs reachable from the
// targets, with dependency edges between them.  Pairs whose mapping already
// exists are not in the plan; the mapping is the completeness witness, so
// expansion stops there.
type plan struct {
	nodes      map[nodeKey]*node
	dependents map[nodeKey][]nodeKey
}

// workItem tracks where a key came from so that a dangling parent reference
// can be reported as graph corruption rather than a plain unknown changeset.
type workItem struct {
	key   nodeKey
	child *commitgraph.ID
}

// buildPlan expands the targets into the full set of work.  Expansion is an
// explicit worklist rather than recursion, so arbitrarily deep histories do
// not grow the stack.
func (s *Scheduler) buildPlan(ctx context.Context, targets []nodeKey, force bool) (*plan, error) {
	p := &plan{
		nodes:      make(map[nodeKey]*node),
		dependents: make(map[nodeKey][]nodeKey),
	}
	forced := make(map[nodeKey]bool, len(targets))
	if force {
		for _, t := range targets {
			forced[t] = true
		}
	}
	visited := make(map[nodeKey]bool)
	changesets := make(map[commitgraph.ID]*commitgraph.Changeset)
	worklist := make([]workItem, 0, len(targets))
	for _, t := range targets {
		worklist = append(worklist, workItem{key: t})
	}
	for len(worklist) > 0 {
		item := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		key := item.key
		if visited[key] {
			continue
		}
		visited[key] = true
		kind, err := s.registry.Get(key.kind)
		if err != nil {
			return nil, err
		}
		// A present mapping means the pair and everything beneath it is
		// complete; only a forced target looks past it.
		if !forced[key] {
			_, err := s.store.LookupExternal(ctx, key.id, key.kind)
			if err == nil {
				continue
			}
			if !mapstore.IsNotFound(err) {
				return nil, err
			}
		}
		cs, ok := changesets[key.id]
		if !ok {
			cs, err = s.graph.Get(ctx, key.id)
			if err != nil {
				if item.child != nil && commitgraph.IsUnknownChangeset(err) {
					return nil, errors.EnsureStack(&commitgraph.ConsistencyError{
						ID:     key.id,
						Reason: "dangling parent reference from " + item.child.HexString(),
					})
				}
				return nil, err
			}
			changesets[key.id] = cs
		}
		n := &node{key: key, cs: cs, kind: kind, forced: forced[key]}
		for _, dep := range kind.Deps {
			depKey := nodeKey{id: key.id, kind: dep}
			n.prereqs = append(n.prereqs, depKey)
			worklist = append(worklist, workItem{key: depKey})
		}
		if kind.Recursive {
			for _, parent := range cs.Parents {
				parentKey := nodeKey{id: parent, kind: key.kind}
				n.prereqs = append(n.prereqs, parentKey)
				worklist = append(worklist, workItem{key: parentKey, child: &n.cs.ID})
			}
		}
		p.nodes[key] = n
	}
	// Edges exist only between nodes that are both in the plan: a prereq
	// absent from the plan is already mapped and its value will be read from
	// the store.
	for _, n := range p.nodes {
		for _, pre := range n.prereqs {
			if _, ok := p.nodes[pre]; ok {
				n.indegree++
				p.dependents[pre] = append(p.dependents[pre], n.key)
			}
		}
	}
	if err := p.checkAcyclic(); err != nil {
		return nil, err
	}
	return p, nil
}

// checkAcyclic runs Kahn's algorithm over the plan.  Kind dependencies are
// validated acyclic at registry construction, so a leftover node means a
// cycle in the commit graph itself, which is corruption.
func (p *plan) checkAcyclic() error {
	indegree := make(map[nodeKey]int, len(p.nodes))
	ready := make([]nodeKey, 0, len(p.nodes))
	for key, n := range p.nodes {
		indegree[key] = n.indegree
		if n.indegree == 0 {
			ready = append(ready, key)
		}
	}
	seen := 0
	for len(ready) > 0 {
		key := ready[len(ready)-1]
		ready = ready[:len(ready)-1]
		seen++
		for _, dep := range p.dependents[key] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}
	if seen != len(p.nodes) {
		for key, n := range p.nodes {
			if indegree[key] > 0 {
				return errors.EnsureStack(&commitgraph.ConsistencyError{
					ID:     n.cs.ID,
					Reason: "cycle through " + key.String(),
				})
			}
		}
	}
	return nil
}
