// Package mapstore implements the mapping store: the content-addressed,
// persistent map from (changeset id, kind) to a completed derivation.
//
// Presence of a mapping is the system's completeness witness, so writes are
// all-or-nothing and an entry is only ever replaced by an explicit overwrite.
// Transient failures of the underlying store are retried here, with backoff;
// everything above this package sees either a result or a final error.
package mapstore

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jamestiotio/sapling/src/commitgraph"
	"github.com/jamestiotio/sapling/src/internal/backoff"
	"github.com/jamestiotio/sapling/src/internal/errors"
	"github.com/jamestiotio/sapling/src/internal/kv"
	"github.com/jamestiotio/sapling/src/internal/log"
	"github.com/jamestiotio/sapling/src/internal/stream"
)

// Derivation is the current derived value for one (changeset, kind) pair.
type Derivation struct {
	ChangesetID commitgraph.ID
	Kind        string
	ExternalID  string
	Payload     []byte
}

// mappingRow is the persisted value; the key carries the changeset id and
// kind.
type mappingRow struct {
	ExternalID string `json:"external_id"`
	Payload    []byte `json:"payload"`
}

const (
	mappingKeyPrefix = "mappings/"
	maxMappingSize   = 16 << 20
)

func mappingKey(csid commitgraph.ID, kind string) []byte {
	// Keyed changeset-first so one prefix scan lists every kind derived
	// for a changeset.
	return []byte(mappingKeyPrefix + csid.HexString() + "/" + kind)
}

// Store is the mapping store.
type Store struct {
	kv         kv.Store
	newBackOff func() backoff.BackOff
}

// Option configures a Store.
type Option func(*Store)

// WithBackOff replaces the retry policy used for transient store errors.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(s *Store) { s.newBackOff = f }
}

func New(store kv.Store, opts ...Option) *Store {
	s := &Store{
		kv: store,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxElapsedTime = 30 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Lookup returns the current derivation for (csid, kind), or a NotFoundError.
// Pure read; no side effects.
func (s *Store) Lookup(ctx context.Context, csid commitgraph.ID, kind string) (*Derivation, error) {
	var value []byte
	err := s.retryTransient(ctx, "lookup", func() error {
		var err error
		value, err = kv.GetBytes(ctx, s.kv, mappingKey(csid, kind), maxMappingSize)
		return err
	})
	if err != nil {
		if kv.IsNotExist(err) {
			return nil, errors.EnsureStack(&NotFoundError{ChangesetID: csid, Kind: kind})
		}
		return nil, err
	}
	var row mappingRow
	if err := json.Unmarshal(value, &row); err != nil {
		return nil, errors.Wrapf(err, "decode mapping for %s/%s", csid.HexString(), kind)
	}
	return &Derivation{
		ChangesetID: csid,
		Kind:        kind,
		ExternalID:  row.ExternalID,
		Payload:     row.Payload,
	}, nil
}

// LookupExternal is the projection of Lookup to the external id.
func (s *Store) LookupExternal(ctx context.Context, csid commitgraph.ID, kind string) (string, error) {
	d, err := s.Lookup(ctx, csid, kind)
	if err != nil {
		return "", err
	}
	return d.ExternalID, nil
}

// Put records a derivation.  If an entry already exists and overwrite is
// false, Put fails with a ConflictError and changes nothing.  With overwrite
// true it atomically replaces the prior entry.  The store does not judge
// whether the new value is better; it trusts the caller.
func (s *Store) Put(ctx context.Context, d Derivation, overwrite bool) error {
	if d.ExternalID == "" {
		return errors.Errorf("refusing to store empty external id for %s/%s", d.ChangesetID.HexString(), d.Kind)
	}
	key := mappingKey(d.ChangesetID, d.Kind)
	value, err := json.Marshal(mappingRow{ExternalID: d.ExternalID, Payload: d.Payload})
	if err != nil {
		return errors.Wrap(err, "encode mapping")
	}
	return s.retryTransient(ctx, "put", func() error {
		if !overwrite {
			exists, err := s.kv.Exists(ctx, key)
			if err != nil {
				return err
			}
			if exists {
				return errors.EnsureStack(&ConflictError{ChangesetID: d.ChangesetID, Kind: d.Kind})
			}
		}
		return s.kv.Put(ctx, key, value)
	})
}

// Delete removes the mapping for (csid, kind).  Only operator tooling calls
// this; the scheduler never deletes.
func (s *Store) Delete(ctx context.Context, csid commitgraph.ID, kind string) error {
	return s.retryTransient(ctx, "delete", func() error {
		return s.kv.Delete(ctx, mappingKey(csid, kind))
	})
}

// ListKinds returns the kinds with a current derivation for csid, sorted.
func (s *Store) ListKinds(ctx context.Context, csid commitgraph.ID) ([]string, error) {
	prefix := mappingKeyPrefix + csid.HexString() + "/"
	var kinds []string
	err := s.retryTransient(ctx, "listKinds", func() error {
		kinds = kinds[:0]
		it := s.kv.NewKeyIterator(kv.SpanFromPrefix([]byte(prefix)))
		return stream.ForEach(ctx, it, func(key []byte) error {
			kinds = append(kinds, strings.TrimPrefix(string(key), prefix))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return kinds, nil
}

// retryTransient runs op, retrying with backoff as long as the error is
// transient.  When retries are exhausted the last error is wrapped in a
// StoreUnavailableError; non-transient errors pass through untouched.
func (s *Store) retryTransient(ctx context.Context, name string, op func() error) error {
	var permanent error
	err := backoff.RetryUntilCancel(ctx, func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !kv.IsTransient(err) {
			permanent = err
			return nil
		}
		return err
	}, s.newBackOff(), func(err error, d time.Duration) error {
		log.Info(ctx, "mapping store unavailable; retrying",
			zap.String("op", name), zap.Error(err), zap.Duration("retryIn", d))
		return nil
	})
	if err != nil {
		return errors.EnsureStack(&StoreUnavailableError{Op: name, Err: err})
	}
	return permanent
}
