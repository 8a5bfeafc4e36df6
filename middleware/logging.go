package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/ostrokach/biskit/wire"
)

// Logging returns middleware that logs chunk start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, f *wire.Frame, next Handler) error {
		logger.Info("chunk started",
			slog.String("chunk_id", f.ChunkID),
			slog.Int("items", len(f.Items)),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("chunk failed",
				slog.String("chunk_id", f.ChunkID),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("chunk completed",
				slog.String("chunk_id", f.ChunkID),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
