package dlock

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/jamestiotio/sapling/src/internal/errors"
	"github.com/jamestiotio/sapling/src/internal/pctx"
)

// NewLocalLeaser returns a Leaser whose locks only exclude other locks from
// the same Leaser.  Suitable for single-process deployments and tests.
func NewLocalLeaser() Leaser {
	return &localLeaser{keys: make(map[string]*localKey)}
}

type localLeaser struct {
	mu   sync.Mutex
	keys map[string]*localKey
}

type localKey struct {
	sem  chan struct{} // capacity 1; holding the token = holding the lock
	refs int
}

func (l *localLeaser) acquireKey(key string) *localKey {
	l.mu.Lock()
	defer l.mu.Unlock()
	k, ok := l.keys[key]
	if !ok {
		k = &localKey{sem: make(chan struct{}, 1)}
		l.keys[key] = k
	}
	k.refs++
	return k
}

func (l *localLeaser) releaseKey(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k, ok := l.keys[key]
	if !ok {
		return
	}
	k.refs--
	if k.refs == 0 {
		delete(l.keys, key)
	}
}

func (l *localLeaser) Lease(key string) DLock {
	return &localLock{leaser: l, key: key}
}

type localLock struct {
	leaser *localLeaser
	key    string

	held   *localKey
	cancel context.CancelFunc
}

func (d *localLock) Lock(ctx context.Context) (context.Context, error) {
	k := d.leaser.acquireKey(d.key)
	select {
	case k.sem <- struct{}{}:
	case <-ctx.Done():
		d.leaser.releaseKey(d.key)
		return nil, errors.EnsureStack(context.Cause(ctx))
	}
	return d.locked(ctx, k), nil
}

func (d *localLock) TryLock(ctx context.Context) (context.Context, error) {
	k := d.leaser.acquireKey(d.key)
	select {
	case k.sem <- struct{}{}:
	default:
		d.leaser.releaseKey(d.key)
		return nil, ErrNotAcquired
	}
	return d.locked(ctx, k), nil
}

func (d *localLock) locked(ctx context.Context, k *localKey) context.Context {
	ctx, cancel := pctx.WithCancel(pctx.Child(ctx, "", pctx.WithFields(zap.String("withLock", d.key))))
	d.held = k
	d.cancel = cancel
	return ctx
}

func (d *localLock) Unlock(ctx context.Context) error {
	if d.held == nil {
		return errors.New("unlock of a lock that is not held")
	}
	d.cancel()
	<-d.held.sem
	d.held = nil
	d.leaser.releaseKey(d.key)
	return nil
}
