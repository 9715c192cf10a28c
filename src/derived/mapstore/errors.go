package mapstore

import (
	"fmt"

	"github.com/jamestiotio/sapling/src/commitgraph"
	"github.com/jamestiotio/sapling/src/internal/errors"
)

// NotFoundError indicates no current derivation exists for a (changeset,
// kind) pair.  It is not an error in derivation itself, only in conversion;
// the caller may resolve it by deriving first.
type NotFoundError struct {
	ChangesetID commitgraph.ID
	Kind        string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s derivation for changeset %s", e.Kind, e.ChangesetID.HexString())
}

// IsNotFound returns true if err indicates a missing mapping.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// ConflictError indicates a non-forced Put over an existing mapping.  If this
// surfaces from inside the scheduler it is a bug: the lease should have
// serialized the writers.
type ConflictError struct {
	ChangesetID commitgraph.ID
	Kind        string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s derivation for changeset %s already exists", e.Kind, e.ChangesetID.HexString())
}

// IsConflict returns true if err indicates a conflicting Put.
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// StoreUnavailableError indicates the underlying durable store kept failing
// transiently until retries were exhausted.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("mapping store unavailable (%s): %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// IsStoreUnavailable returns true if err indicates exhausted retries against
// the underlying store.
func IsStoreUnavailable(err error) bool {
	var target *StoreUnavailableError
	return errors.As(err, &target)
}
