package log

import (
	"context"
	"testing"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// AddTestLogger returns a context carrying a logger that writes through
// tb.Log, at debug level.  Prefer pctx.TestContext(tb).
func AddTestLogger(ctx context.Context, tb testing.TB) context.Context {
	return withLogger(ctx, zaptest.NewLogger(tb, zaptest.Level(zapcore.DebugLevel)))
}
