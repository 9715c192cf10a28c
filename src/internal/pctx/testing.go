package pctx

import (
	"context"
	"testing"

	"github.com/jamestiotio/sapling/src/internal/log"
)

// TestContext returns a context for use in tests.  Logs are routed to tb.Log
// at debug level, and the context is cancelled when the test ends.
func TestContext(tb testing.TB) context.Context {
	ctx := log.AddTestLogger(context.Background(), tb)
	ctx = Child(ctx, tb.Name())
	ctx, cancel := context.WithCancel(ctx)
	tb.Cleanup(cancel)
	return ctx
}
