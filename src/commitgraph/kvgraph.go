package commitgraph

import (
	"context"

	"github.com/jamestiotio/sapling/src/internal/errors"
	"github.com/jamestiotio/sapling/src/internal/kv"
)

// changesetKeyPrefix is the key namespace for changesets in a shared kv
// store.  The mapping store uses a disjoint prefix of the same store.
const changesetKeyPrefix = "changesets/"

// maxChangesetSize bounds a single changeset's canonical serialization.
const maxChangesetSize = 16 << 20

func changesetKey(id ID) []byte {
	return append([]byte(changesetKeyPrefix), id.HexString()...)
}

var _ Graph = &KVGraph{}

// KVGraph reads changesets from a kv.Store that the ingestion collaborator
// writes into (see WriteChangeset).
type KVGraph struct {
	store kv.Store
}

func NewKVGraph(store kv.Store) *KVGraph {
	return &KVGraph{store: store}
}

func (g *KVGraph) Get(ctx context.Context, id ID) (*Changeset, error) {
	content, err := kv.GetBytes(ctx, g.store, changesetKey(id), maxChangesetSize)
	if err != nil {
		if kv.IsNotExist(err) {
			return nil, errors.EnsureStack(&UnknownChangesetError{ID: id})
		}
		return nil, errors.Wrapf(err, "get changeset %s", id.HexString())
	}
	cs, err := ParseChangeset(content)
	if err != nil {
		return nil, errors.Wrapf(err, "parse changeset %s", id.HexString())
	}
	if cs.ID != id {
		return nil, errors.EnsureStack(&ConsistencyError{
			ID:     id,
			Reason: "stored content hashes to " + cs.ID.HexString(),
		})
	}
	return cs, nil
}

func (g *KVGraph) Parents(ctx context.Context, id ID) ([]ID, error) {
	cs, err := g.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return cs.Parents, nil
}

// WriteChangeset persists a changeset into the store KVGraph reads from.
// This is the ingestion side of the contract; the derivation engine never
// calls it.  Writing the same changeset twice is harmless: the key is the
// content hash, so the value cannot differ.
func WriteChangeset(ctx context.Context, store kv.Store, cs *Changeset) error {
	return errors.Wrapf(store.Put(ctx, changesetKey(cs.ID), cs.Content()),
		"write changeset %s", cs.ID.HexString())
}
