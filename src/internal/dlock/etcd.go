package dlock

import (
	"context"
	"time"

	etcd "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/zap"

	"github.com/jamestiotio/sapling/src/internal/errors"
	"github.com/jamestiotio/sapling/src/internal/log"
	"github.com/jamestiotio/sapling/src/internal/pctx"
)

// NewEtcdLeaser returns a Leaser whose locks are etcd mutexes under prefix.
func NewEtcdLeaser(client *etcd.Client, prefix string) Leaser {
	return &etcdLeaser{client: client, prefix: prefix}
}

type etcdLeaser struct {
	client *etcd.Client
	prefix string
}

func (l *etcdLeaser) Lease(key string) DLock {
	return &etcdImpl{
		client: l.client,
		prefix: l.prefix + "/" + key,
	}
}

type etcdImpl struct {
	client *etcd.Client
	prefix string

	session *concurrency.Session
	mutex   *concurrency.Mutex
}

func (d *etcdImpl) Lock(ctx context.Context) (_ context.Context, retErr error) {
	ctx = pctx.Child(ctx, "", pctx.WithFields(zap.String("withLock", d.prefix)))
	defer log.Span(ctx, "DLock.Lock")(log.Errorp(&retErr))
	return d.lock(ctx, func(m *concurrency.Mutex) error { return m.Lock(ctx) })
}

func (d *etcdImpl) TryLock(ctx context.Context) (_ context.Context, retErr error) {
	ctx = pctx.Child(ctx, "", pctx.WithFields(zap.String("withLock", d.prefix)))
	defer log.Span(ctx, "DLock.TryLock")(log.Errorp(&retErr))
	return d.lock(ctx, func(m *concurrency.Mutex) error {
		if err := m.TryLock(ctx); err != nil {
			if errors.Is(err, concurrency.ErrLocked) {
				return ErrNotAcquired
			}
			return err
		}
		return nil
	})
}

func (d *etcdImpl) lock(ctx context.Context, acquire func(*concurrency.Mutex) error) (context.Context, error) {
	// The default TTL is 60 secs which means that if a node dies, it still
	// holds the lock for 60 secs, which is too high.
	session, err := concurrency.NewSession(d.client, concurrency.WithContext(ctx), concurrency.WithTTL(15))
	if err != nil {
		return nil, errors.EnsureStack(err)
	}

	mutex := concurrency.NewMutex(session, d.prefix)
	if err := acquire(mutex); err != nil {
		if closeErr := session.Close(); closeErr != nil {
			log.Error(ctx, "closing session after failed lock", zap.Error(closeErr))
		}
		return nil, errors.EnsureStack(err)
	}
	start := time.Now()
	log.Debug(ctx, "acquired lock ok")

	ctx, cancel := pctx.WithCancel(pctx.Child(ctx, "", pctx.WithFields(zap.Bool("locked", true))))
	go func() {
		select {
		case <-ctx.Done():
			log.Debug(ctx, "lock's context is done", zap.Error(context.Cause(ctx)), zap.Duration("lockLifetime", time.Since(start)))
		case <-session.Done():
			log.Debug(ctx, "lock's session is done; cancelling associated context", zap.Duration("lockLifetime", time.Since(start)))
			cancel()
		}
	}()

	d.session = session
	d.mutex = mutex
	return ctx, nil
}

func (d *etcdImpl) Unlock(ctx context.Context) (retErr error) {
	defer log.Span(ctx, "DLock.Unlock", zap.String("prefix", d.prefix))(log.Errorp(&retErr))

	if err := d.mutex.Unlock(ctx); err != nil {
		return errors.EnsureStack(err)
	}
	if err := d.session.Close(); err != nil {
		return errors.EnsureStack(err)
	}
	log.Debug(ctx, "relinquished lock ok", zap.String("prefix", d.prefix))
	return nil
}
