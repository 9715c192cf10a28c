package kv

import (
	"context"
	"database/sql"
	"io"
	"strconv"

	"github.com/jmoiron/sqlx"

	"github.com/jamestiotio/sapling/src/internal/errors"
	"github.com/jamestiotio/sapling/src/internal/stream"
)

var _ Store = &PostgresStore{}

// PostgresStore is a Store backed by a single Postgres table.  Each Put is a
// single-row upsert, which gives the read-after-write guarantee the mapping
// store needs without any multi-key transactions.
type PostgresStore struct {
	db        *sqlx.DB
	tableName string
}

func NewPostgresStore(db *sqlx.DB, tableName string) *PostgresStore {
	return &PostgresStore{db: db, tableName: tableName}
}

// SetupPostgresStoreV0 creates the table for a PostgresStore.  It is
// idempotent.
func SetupPostgresStoreV0(ctx context.Context, db *sqlx.DB, tableName string) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+tableName+` (
			key BYTEA PRIMARY KEY,
			value BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return errors.EnsureStack(err)
}

func (s *PostgresStore) Get(ctx context.Context, key, buf []byte) (int, error) {
	var value []byte
	err := s.db.GetContext(ctx, &value, `SELECT value FROM `+s.tableName+` WHERE key = $1`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, NewNotExist(key)
		}
		return 0, WrapTransient(err)
	}
	if len(buf) < len(value) {
		return 0, io.ErrShortBuffer
	}
	return copy(buf, value), nil
}

func (s *PostgresStore) Put(ctx context.Context, key, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO `+s.tableName+` (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = now()
	`, key, value)
	return WrapTransient(err)
}

func (s *PostgresStore) Delete(ctx context.Context, key []byte) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM `+s.tableName+` WHERE key = $1`, key)
	return WrapTransient(err)
}

func (s *PostgresStore) Exists(ctx context.Context, key []byte) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM `+s.tableName+` WHERE key = $1)`, key)
	if err != nil {
		return false, WrapTransient(err)
	}
	return exists, nil
}

func (s *PostgresStore) NewKeyIterator(span Span) stream.Iterator[[]byte] {
	return &pgKeyIterator{store: s, span: span}
}

// pgKeyIterator pages through keys in span, re-querying from the last key
// seen; it never holds a cursor open across Next calls.
type pgKeyIterator struct {
	store *PostgresStore
	span  Span

	buf  [][]byte
	pos  int
	last []byte
	done bool
}

const pgIteratorPageSize = 100

func (it *pgKeyIterator) Next(ctx context.Context, dst *[]byte) error {
	if it.pos >= len(it.buf) && !it.done {
		if err := it.fetchPage(ctx); err != nil {
			return err
		}
	}
	if it.pos >= len(it.buf) {
		return stream.EOS()
	}
	*dst = it.buf[it.pos]
	it.pos++
	return nil
}

func (it *pgKeyIterator) fetchPage(ctx context.Context) error {
	q := `SELECT key FROM ` + it.store.tableName + ` WHERE key >= $1`
	args := []interface{}{it.pageBegin()}
	if it.span.End != nil {
		q += ` AND key < $2`
		args = append(args, it.span.End)
	}
	q += ` ORDER BY key LIMIT ` + strconv.Itoa(pgIteratorPageSize)
	var keys [][]byte
	if err := it.store.db.SelectContext(ctx, &keys, q, args...); err != nil {
		return WrapTransient(err)
	}
	if len(keys) < pgIteratorPageSize {
		it.done = true
	}
	if len(keys) > 0 {
		it.last = keys[len(keys)-1]
	}
	it.buf = keys
	it.pos = 0
	return nil
}

func (it *pgKeyIterator) pageBegin() []byte {
	if it.last == nil {
		return it.span.Begin
	}
	// Key immediately after the last one returned.
	return append(append([]byte{}, it.last...), 0x00)
}
