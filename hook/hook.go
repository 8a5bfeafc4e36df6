// Package hook defines the extension system for the coordinator.
// Extensions are notified of lifecycle events (worker ready, chunk
// assigned, item failed, etc.) and can react to them — logging,
// metrics, progress reporting.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package hook

import (
	"context"
	"time"

	"github.com/ostrokach/biskit/id"
	"github.com/ostrokach/biskit/sched"
	"github.com/ostrokach/biskit/work"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Worker lifecycle hooks
// ──────────────────────────────────────────────────

// WorkerReady is called when a worker completes its handshake and
// becomes eligible for chunk assignment.
type WorkerReady interface {
	OnWorkerReady(ctx context.Context, workerID id.WorkerID, host string) error
}

// WorkerDead is called when a worker is declared dead, either because
// its transport disconnected or its chunk deadline expired.
type WorkerDead interface {
	OnWorkerDead(ctx context.Context, workerID id.WorkerID, host string, reason string) error
}

// ──────────────────────────────────────────────────
// Chunk lifecycle hooks
// ──────────────────────────────────────────────────

// ChunkAssigned is called after a chunk is dispatched to a worker.
type ChunkAssigned interface {
	OnChunkAssigned(ctx context.Context, c *sched.Chunk) error
}

// ChunkCompleted is called after every item of a chunk has been delivered.
type ChunkCompleted interface {
	OnChunkCompleted(ctx context.Context, c *sched.Chunk, elapsed time.Duration) error
}

// ──────────────────────────────────────────────────
// Item and run hooks
// ──────────────────────────────────────────────────

// ItemFailed is called when an item exhausts its retry budget and is
// marked permanently failed.
type ItemFailed interface {
	OnItemFailed(ctx context.Context, itemID string, attempts int) error
}

// AllDone is called once, when no pending or in-flight work remains.
// Results holds every result delivered during the run.
type AllDone interface {
	OnAllDone(ctx context.Context, results work.Results, failedIDs []string) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
