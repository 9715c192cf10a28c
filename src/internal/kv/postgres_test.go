package kv

import (
	"os"
	"strconv"
	"testing"

	"github.com/jamestiotio/sapling/src/internal/dbutil"
	"github.com/jamestiotio/sapling/src/internal/pctx"
	"github.com/jamestiotio/sapling/src/internal/require"
)

// TestPostgresStore runs the conformance suite against a real database.  Set
// KV_POSTGRES_HOST (and optionally KV_POSTGRES_PORT, KV_POSTGRES_DB,
// KV_POSTGRES_USER, KV_POSTGRES_PASSWORD) to enable it.
func TestPostgresStore(t *testing.T) {
	host := os.Getenv("KV_POSTGRES_HOST")
	if host == "" {
		t.Skip("KV_POSTGRES_HOST not set")
	}
	ctx := pctx.TestContext(t)
	port := 5432
	if p := os.Getenv("KV_POSTGRES_PORT"); p != "" {
		var err error
		port, err = strconv.Atoi(p)
		require.NoError(t, err)
	}
	opts := []dbutil.Option{dbutil.WithHostPort(host, port)}
	if name := os.Getenv("KV_POSTGRES_DB"); name != "" {
		opts = append(opts, dbutil.WithDBName(name))
	}
	if user := os.Getenv("KV_POSTGRES_USER"); user != "" {
		opts = append(opts, dbutil.WithUserPassword(user, os.Getenv("KV_POSTGRES_PASSWORD")))
	}
	db, err := dbutil.NewDB(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, dbutil.WaitUntilReady(ctx, db))

	require.NoError(t, SetupPostgresStoreV0(ctx, db, "test_kv"))
	t.Cleanup(func() {
		_, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS test_kv")
		require.NoError(t, err)
	})
	TestStore(t, func(t testing.TB) Store {
		_, err := db.ExecContext(ctx, "DELETE FROM test_kv")
		require.NoError(t, err)
		return NewPostgresStore(db, "test_kv")
	})
}
