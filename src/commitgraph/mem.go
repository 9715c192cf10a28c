package commitgraph

import (
	"context"
	"sync"

	"github.com/jamestiotio/sapling/src/internal/errors"
)

var _ Graph = &MemGraph{}

// MemGraph is an in-memory Graph with an ingestion-facing Add, for tests and
// single-process tooling.
type MemGraph struct {
	mu         sync.RWMutex
	changesets map[ID]*Changeset
}

func NewMemGraph() *MemGraph {
	return &MemGraph{changesets: make(map[ID]*Changeset)}
}

// Add appends a changeset.  Per the ingestion contract, every parent must
// already be present; a dangling parent is a ConsistencyError.  Adding the
// same changeset twice is a no-op (ids are content hashes, so the content is
// necessarily identical).
func (g *MemGraph) Add(ctx context.Context, cs *Changeset) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, parent := range cs.Parents {
		if _, ok := g.changesets[parent]; !ok {
			return errors.EnsureStack(&ConsistencyError{
				ID:     cs.ID,
				Reason: "parent " + parent.HexString() + " has not been ingested",
			})
		}
	}
	g.changesets[cs.ID] = cs
	return nil
}

func (g *MemGraph) Get(ctx context.Context, id ID) (*Changeset, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cs, ok := g.changesets[id]
	if !ok {
		return nil, errors.EnsureStack(&UnknownChangesetError{ID: id})
	}
	return cs, nil
}

func (g *MemGraph) Parents(ctx context.Context, id ID) ([]ID, error) {
	cs, err := g.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return append([]ID{}, cs.Parents...), nil
}
