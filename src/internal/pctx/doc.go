// Package pctx manages contexts.
//
// Contexts are the root of logging and cancellation in this codebase; this
// package manages a context that is set up to do all of those things.
//
// # GETTING A CONTEXT
//
// If you are creating a new application, use `Background` to get the root
// context and derive all future contexts from that.  Tests use `TestContext`.
//
// # DERIVED CONTEXTS
//
// It is perfectly safe to use context.WithTimeout, context.WithCancel,
// context.WithValue, etc.; the derived context inherits the capabilities of
// its parent.
//
// Sometimes you want to spin off an operation with a name and some fields.
// `Child(parent, "name", [options...])` takes care of this.  Each Child call
// appends its name to the parent's, so deep in a derivation you might see
// logs from "scheduler.derive(hg_changeset).computeNode", telling you where
// about in the stack the line came from.
//
// The convention is to use oneCamelCaseWord for the logger name, and for
// parents to name their children.  Instead of:
//
//	func worker(ctx context.Context) {
//	    ctx = pctx.Child(ctx, "worker")
//	    ...
//	}
//
// Prefer:
//
//	go s.worker(pctx.Child(ctx, "worker"))
package pctx
