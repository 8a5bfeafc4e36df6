package hook

import (
	"context"
	"log/slog"
	"time"

	"github.com/ostrokach/biskit/id"
	"github.com/ostrokach/biskit/sched"
	"github.com/ostrokach/biskit/work"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type workerReadyEntry struct {
	name string
	hook WorkerReady
}

type workerDeadEntry struct {
	name string
	hook WorkerDead
}

type chunkAssignedEntry struct {
	name string
	hook ChunkAssigned
}

type chunkCompletedEntry struct {
	name string
	hook ChunkCompleted
}

type itemFailedEntry struct {
	name string
	hook ItemFailed
}

type allDoneEntry struct {
	name string
	hook AllDone
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	workerReady    []workerReadyEntry
	workerDead     []workerDeadEntry
	chunkAssigned  []chunkAssignedEntry
	chunkCompleted []chunkCompletedEntry
	itemFailed     []itemFailedEntry
	allDone        []allDoneEntry
	shutdown       []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(WorkerReady); ok {
		r.workerReady = append(r.workerReady, workerReadyEntry{name, h})
	}
	if h, ok := e.(WorkerDead); ok {
		r.workerDead = append(r.workerDead, workerDeadEntry{name, h})
	}
	if h, ok := e.(ChunkAssigned); ok {
		r.chunkAssigned = append(r.chunkAssigned, chunkAssignedEntry{name, h})
	}
	if h, ok := e.(ChunkCompleted); ok {
		r.chunkCompleted = append(r.chunkCompleted, chunkCompletedEntry{name, h})
	}
	if h, ok := e.(ItemFailed); ok {
		r.itemFailed = append(r.itemFailed, itemFailedEntry{name, h})
	}
	if h, ok := e.(AllDone); ok {
		r.allDone = append(r.allDone, allDoneEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Worker event emitters
// ──────────────────────────────────────────────────

// EmitWorkerReady notifies all extensions that implement WorkerReady.
func (r *Registry) EmitWorkerReady(ctx context.Context, workerID id.WorkerID, host string) {
	for _, e := range r.workerReady {
		if err := e.hook.OnWorkerReady(ctx, workerID, host); err != nil {
			r.logHookError("OnWorkerReady", e.name, err)
		}
	}
}

// EmitWorkerDead notifies all extensions that implement WorkerDead.
func (r *Registry) EmitWorkerDead(ctx context.Context, workerID id.WorkerID, host string, reason string) {
	for _, e := range r.workerDead {
		if err := e.hook.OnWorkerDead(ctx, workerID, host, reason); err != nil {
			r.logHookError("OnWorkerDead", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Chunk event emitters
// ──────────────────────────────────────────────────

// EmitChunkAssigned notifies all extensions that implement ChunkAssigned.
func (r *Registry) EmitChunkAssigned(ctx context.Context, c *sched.Chunk) {
	for _, e := range r.chunkAssigned {
		if err := e.hook.OnChunkAssigned(ctx, c); err != nil {
			r.logHookError("OnChunkAssigned", e.name, err)
		}
	}
}

// EmitChunkCompleted notifies all extensions that implement ChunkCompleted.
func (r *Registry) EmitChunkCompleted(ctx context.Context, c *sched.Chunk, elapsed time.Duration) {
	for _, e := range r.chunkCompleted {
		if err := e.hook.OnChunkCompleted(ctx, c, elapsed); err != nil {
			r.logHookError("OnChunkCompleted", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Item and run event emitters
// ──────────────────────────────────────────────────

// EmitItemFailed notifies all extensions that implement ItemFailed.
func (r *Registry) EmitItemFailed(ctx context.Context, itemID string, attempts int) {
	for _, e := range r.itemFailed {
		if err := e.hook.OnItemFailed(ctx, itemID, attempts); err != nil {
			r.logHookError("OnItemFailed", e.name, err)
		}
	}
}

// EmitAllDone notifies all extensions that implement AllDone.
func (r *Registry) EmitAllDone(ctx context.Context, results work.Results, failedIDs []string) {
	for _, e := range r.allDone {
		if err := e.hook.OnAllDone(ctx, results, failedIDs); err != nil {
			r.logHookError("OnAllDone", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the run.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
