// Package identity converts canonical changeset ids into the external ids of
// derived kinds: the hg node for hg_changeset, the git hash for git_commit,
// the source system's native id for source_native.
//
// Conversion is a pure read: it never triggers derivation.  Asking for a pair
// that has not been derived is NotDerivedError, so callers can tell "derive
// it first" apart from "no such changeset".
package identity

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jamestiotio/sapling/src/commitgraph"
	"github.com/jamestiotio/sapling/src/derived/mapstore"
	"github.com/jamestiotio/sapling/src/internal/errors"
)

const defaultCacheSize = 1 << 16

// NotDerivedError reports that the changeset exists but kind has not been
// derived for it.
type NotDerivedError struct {
	ChangesetID commitgraph.ID
	Kind        string
}

func (e *NotDerivedError) Error() string {
	return fmt.Sprintf("%s is not derived for %s", e.Kind, e.ChangesetID.HexString())
}

// IsNotDerived returns true if err indicates a missing derivation.
func IsNotDerived(err error) bool {
	var target *NotDerivedError
	return errors.As(err, &target)
}

// Resolver answers identity conversions out of the mapping store, with a
// read-through LRU in front.  Mappings are immutable except under forced
// rederivation, so cache entries never expire; the CLI invalidates explicitly
// after a force.
type Resolver struct {
	graph commitgraph.Graph
	store *mapstore.Store
	cache *lru.Cache[string, string]
}

// Option configures a Resolver.
type Option func(*config)

type config struct {
	cacheSize int
}

// WithCacheSize overrides the conversion cache capacity.
func WithCacheSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.cacheSize = n
		}
	}
}

func New(graph commitgraph.Graph, store *mapstore.Store, opts ...Option) (*Resolver, error) {
	c := config{cacheSize: defaultCacheSize}
	for _, opt := range opts {
		opt(&c)
	}
	cache, err := lru.New[string, string](c.cacheSize)
	if err != nil {
		return nil, errors.EnsureStack(err)
	}
	return &Resolver{graph: graph, store: store, cache: cache}, nil
}

func cacheKey(csid commitgraph.ID, kind string) string {
	return csid.HexString() + "/" + kind
}

// Convert returns toKind's external id for csid.
func (r *Resolver) Convert(ctx context.Context, csid commitgraph.ID, toKind string) (string, error) {
	key := cacheKey(csid, toKind)
	if ext, ok := r.cache.Get(key); ok {
		return ext, nil
	}
	ext, err := r.store.LookupExternal(ctx, csid, toKind)
	if err == nil {
		r.cache.Add(key, ext)
		return ext, nil
	}
	if !mapstore.IsNotFound(err) {
		return "", err
	}
	// The mapping is absent; the graph decides which error that is.
	if _, err := r.graph.Get(ctx, csid); err != nil {
		return "", err
	}
	return "", errors.EnsureStack(&NotDerivedError{ChangesetID: csid, Kind: toKind})
}

// Invalidate drops the cached conversion for (csid, kind).  Call after a
// forced rederivation replaces the mapping.
func (r *Resolver) Invalidate(csid commitgraph.ID, kind string) {
	r.cache.Remove(cacheKey(csid, kind))
}
