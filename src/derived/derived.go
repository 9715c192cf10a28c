// Package derived declares derived-data kinds: named, statically registered
// alternate representations of a changeset, each with its own dependency and
// compute contract.
package derived

import (
	"context"
	"fmt"

	"github.com/jamestiotio/sapling/src/commitgraph"
	"github.com/jamestiotio/sapling/src/internal/errors"
)

// Value is one computed derivation: an opaque payload plus the external id
// that names it in the kind's own namespace (e.g. a Mercurial node hash).
type Value struct {
	ExternalID string `json:"external_id"`
	Payload    []byte `json:"payload"`
}

// ComputeInput is everything a compute function may read.  Compute functions
/// must be deterministic over this input: the engine memoizes aggressively and
// never re-checks a cached result.
type ComputeInput struct {
	// Changeset is the changeset being derived.
	Changeset *commitgraph.Changeset
	// Deps maps each dependency kind's name to its value for this same
	// changeset.
	Deps map[string]Value
	// Parents holds this kind's values for each parent, in parent order.
	// Empty when the kind is not recursive or the changeset is a root.
	Parents []Value
	// Config is an immutable snapshot; see Config.
	Config Config
}

// Kind describes one derivable representation.  Kinds are static: they are
// registered once at startup and never change at runtime.
type Kind struct {
	// Name identifies the kind; it appears in mapping-store keys so it must
	// be stable across releases.
	Name string
	// Deps names the other kinds this kind needs for the same changeset.
	Deps []string
	// Recursive marks kinds that need their own value for every parent.
	Recursive bool
	// ComputeFn is the kind's deterministic compute contract.
	ComputeFn func(ctx context.Context, input ComputeInput) (Value, error)
}

// Compute runs the kind's compute function.
func (k Kind) Compute(ctx context.Context, input ComputeInput) (Value, error) {
	if k.ComputeFn == nil {
		return Value{}, errors.Errorf("kind %q has no compute function", k.Name)
	}
	v, err := k.ComputeFn(ctx, input)
	if err != nil {
		return Value{}, err
	}
	if v.ExternalID == "" {
		return Value{}, errors.Errorf("kind %q computed an empty external id", k.Name)
	}
	return v, nil
}

// UnknownKindError indicates a kind name absent from the registry.
type UnknownKindError struct {
	Name string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("derived data kind %q is not registered", e.Name)
}
