package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/ostrokach/biskit/wire"
)

// Recover returns middleware that recovers from panics in the work
// function. Panics are converted to errors and logged with a stack
// trace, so one bad payload fails a chunk instead of killing the worker.
func Recover(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, f *wire.Frame, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("chunk work panicked",
					slog.String("chunk_id", f.ChunkID),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = fmt.Errorf("panic in chunk %s: %v", f.ChunkID, r)
			}
		}()
		return next(ctx)
	}
}
