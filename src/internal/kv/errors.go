package kv

import (
	"fmt"

	"github.com/jamestiotio/sapling/src/internal/errors"
)

// NotExistError is returned by Get when there is no entry for the key.
type NotExistError struct {
	Key []byte
}

func (e *NotExistError) Error() string {
	return fmt.Sprintf("key %q does not exist", e.Key)
}

// NewNotExist returns an error indicating key does not exist.
func NewNotExist(key []byte) error {
	return errors.EnsureStack(&NotExistError{Key: append([]byte{}, key...)})
}

// IsNotExist returns true if err indicates a missing key.
func IsNotExist(err error) bool {
	var target *NotExistError
	return errors.As(err, &target)
}

// TransientError wraps an error which is expected to go away with time;
// callers should retry, with backoff.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// WrapTransient marks err as transient.  A nil err stays nil.
func WrapTransient(err error) error {
	if err == nil {
		return nil
	}
	return errors.EnsureStack(&TransientError{Err: err})
}

// IsTransient returns true if err is marked transient anywhere in its chain.
func IsTransient(err error) bool {
	var target *TransientError
	return errors.As(err, &target)
}
