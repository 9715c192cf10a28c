// Package dlock implements locks scoped to a string key, on top of either an
// in-process registry or etcd.
//
// The derivation scheduler takes a lease on each (changeset, kind) pair it
// computes; the Leaser abstraction lets a single-process deployment use plain
// mutexes while a distributed deployment points at etcd, without the core
// caring which.
package dlock

import (
	"context"

	"github.com/jamestiotio/sapling/src/internal/errors"
)

// DLock is a handle to a lock.
type DLock interface {
	// Lock acquires the lock, blocking if necessary.  If the lock is
	// acquired, it returns a context that should be used in any subsequent
	// blocking requests, so that if you lose the lock, the requests get
	// cancelled correctly.
	Lock(context.Context) (context.Context, error)
	// TryLock is like Lock, but returns ErrNotAcquired if the lock is
	// already locked.
	TryLock(context.Context) (context.Context, error)
	// Unlock releases the lock.
	Unlock(context.Context) error
}

// Leaser issues locks for keys.  Locks issued for the same key by the same
// Leaser (or Leasers sharing an etcd cluster and prefix) are mutually
// exclusive.
type Leaser interface {
	Lease(key string) DLock
}

// ErrNotAcquired is returned by TryLock when the lock is held elsewhere.
var ErrNotAcquired = errors.New("lock is already held")
