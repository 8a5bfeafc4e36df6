package middleware

import (
	"context"
	"time"

	"github.com/ostrokach/biskit/wire"
)

// Timeout returns middleware that enforces a per-chunk execution
// deadline. A zero duration disables the deadline. When the deadline is
// exceeded the context is cancelled and the work function should return
// context.DeadlineExceeded.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ *wire.Frame, next Handler) error {
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
