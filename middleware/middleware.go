// Package middleware provides composable middleware for worker-side
// chunk execution. Middleware wraps the work function synchronously and
// can modify execution (recover from panics, log, enforce deadlines).
package middleware

import (
	"context"

	"github.com/ostrokach/biskit/wire"
)

// Handler is the terminal function that executes the chunk work.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic. It receives the
// current context, the chunk frame being executed, and the next handler
// to call. Middleware MUST call next to continue the chain (unless
// short-circuiting on error).
type Middleware func(ctx context.Context, f *wire.Frame, next Handler) error

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover) executes as:
//
//	logging → recover → work
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, f *wire.Frame, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, f, prev)
			}
		}
		return h(ctx)
	}
}
