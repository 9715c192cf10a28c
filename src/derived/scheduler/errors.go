package scheduler

import (
	"fmt"

	"github.com/jamestiotio/sapling/src/commitgraph"
	"github.com/jamestiotio/sapling/src/internal/errors"
)

// ComputeFailureError reports that a kind's compute function failed for a
// changeset.  Dependents of the failed pair are not attempted and report the
// same root failure; work not depending on it still runs.
type ComputeFailureError struct {
	ChangesetID commitgraph.ID
	Kind        string
	Err         error
}

func (e *ComputeFailureError) Error() string {
	return fmt.Sprintf("deriving %s for %s: %v", e.Kind, e.ChangesetID.HexString(), e.Err)
}

func (e *ComputeFailureError) Unwrap() error { return e.Err }

// IsComputeFailure returns true if err is a compute failure, at any depth.
func IsComputeFailure(err error) bool {
	var target *ComputeFailureError
	return errors.As(err, &target)
}
