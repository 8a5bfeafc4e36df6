package hook_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/ostrokach/biskit/hook"
	"github.com/ostrokach/biskit/id"
	"github.com/ostrokach/biskit/sched"
	"github.com/ostrokach/biskit/work"
)

// ──────────────────────────────────────────────────
// Test extensions
// ──────────────────────────────────────────────────

// allHooksExt implements every lifecycle hook for testing.
type allHooksExt struct {
	calls []string
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) OnWorkerReady(_ context.Context, _ id.WorkerID, _ string) error {
	e.calls = append(e.calls, "OnWorkerReady")
	return nil
}

func (e *allHooksExt) OnWorkerDead(_ context.Context, _ id.WorkerID, _ string, _ string) error {
	e.calls = append(e.calls, "OnWorkerDead")
	return nil
}

func (e *allHooksExt) OnChunkAssigned(_ context.Context, _ *sched.Chunk) error {
	e.calls = append(e.calls, "OnChunkAssigned")
	return nil
}

func (e *allHooksExt) OnChunkCompleted(_ context.Context, _ *sched.Chunk, _ time.Duration) error {
	e.calls = append(e.calls, "OnChunkCompleted")
	return nil
}

func (e *allHooksExt) OnItemFailed(_ context.Context, _ string, _ int) error {
	e.calls = append(e.calls, "OnItemFailed")
	return nil
}

func (e *allHooksExt) OnAllDone(_ context.Context, _ work.Results, _ []string) error {
	e.calls = append(e.calls, "OnAllDone")
	return nil
}

func (e *allHooksExt) OnShutdown(_ context.Context) error {
	e.calls = append(e.calls, "OnShutdown")
	return nil
}

// workerOnlyExt only implements worker-related hooks.
type workerOnlyExt struct {
	calls []string
}

func (e *workerOnlyExt) Name() string { return "worker-only" }

func (e *workerOnlyExt) OnWorkerReady(_ context.Context, _ id.WorkerID, _ string) error {
	e.calls = append(e.calls, "OnWorkerReady")
	return nil
}

func (e *workerOnlyExt) OnWorkerDead(_ context.Context, _ id.WorkerID, _ string, _ string) error {
	e.calls = append(e.calls, "OnWorkerDead")
	return nil
}

// failingExt returns errors from hooks.
type failingExt struct{}

func (e *failingExt) Name() string { return "failing" }

func (e *failingExt) OnWorkerReady(_ context.Context, _ id.WorkerID, _ string) error {
	return errors.New("boom")
}

func (e *failingExt) OnShutdown(_ context.Context) error {
	return errors.New("shutdown boom")
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func TestRegistry_RegisterDiscoversInterfaces(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(all)

	if got := len(r.Extensions()); got != 1 {
		t.Fatalf("expected 1 extension, got %d", got)
	}
	if got := r.Extensions()[0].Name(); got != "all-hooks" {
		t.Fatalf("expected name 'all-hooks', got %q", got)
	}
}

func TestRegistry_EmitFiresOnlyImplementors(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	all := &allHooksExt{}
	wo := &workerOnlyExt{}
	r.Register(all)
	r.Register(wo)

	ctx := context.Background()

	// Both implement OnWorkerReady → both called.
	r.EmitWorkerReady(ctx, id.NewWorkerID(), "hostA")
	if len(all.calls) != 1 || all.calls[0] != "OnWorkerReady" {
		t.Fatalf("all: expected [OnWorkerReady], got %v", all.calls)
	}
	if len(wo.calls) != 1 || wo.calls[0] != "OnWorkerReady" {
		t.Fatalf("wo: expected [OnWorkerReady], got %v", wo.calls)
	}

	// Only all implements OnItemFailed → wo not called.
	r.EmitItemFailed(ctx, "item-1", 3)
	if len(all.calls) != 2 || all.calls[1] != "OnItemFailed" {
		t.Fatalf("all: expected OnItemFailed as 2nd, got %v", all.calls)
	}
	if len(wo.calls) != 1 {
		t.Fatalf("wo: should still have 1 call, got %v", wo.calls)
	}
}

func TestRegistry_AllHooksFire(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(all)

	ctx := context.Background()

	r.EmitWorkerReady(ctx, id.NewWorkerID(), "hostA")
	r.EmitWorkerDead(ctx, id.NewWorkerID(), "hostA", "disconnect")
	r.EmitChunkAssigned(ctx, &sched.Chunk{})
	r.EmitChunkCompleted(ctx, &sched.Chunk{}, time.Second)
	r.EmitItemFailed(ctx, "item-1", 3)
	r.EmitAllDone(ctx, work.Results{}, nil)
	r.EmitShutdown(ctx)

	expected := []string{
		"OnWorkerReady", "OnWorkerDead", "OnChunkAssigned",
		"OnChunkCompleted", "OnItemFailed", "OnAllDone", "OnShutdown",
	}
	if len(all.calls) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(all.calls), all.calls)
	}
	for i, want := range expected {
		if all.calls[i] != want {
			t.Errorf("call[%d] = %q, want %q", i, all.calls[i], want)
		}
	}
}

func TestRegistry_HookErrorsLoggedNotPropagated(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	failing := &failingExt{}
	all := &allHooksExt{}

	// Register failing first, then all-hooks. Both should be called.
	r.Register(failing)
	r.Register(all)

	ctx := context.Background()

	// No panic, no error propagation. allHooksExt should still fire.
	r.EmitWorkerReady(ctx, id.NewWorkerID(), "hostA")

	if len(all.calls) != 1 || all.calls[0] != "OnWorkerReady" {
		t.Fatalf("all: expected [OnWorkerReady] despite failing ext, got %v", all.calls)
	}
}

func TestRegistry_EmptyRegistryNoOp(_ *testing.T) {
	r := hook.NewRegistry(slog.Default())
	ctx := context.Background()

	// None of these should panic or error.
	r.EmitWorkerReady(ctx, id.NewWorkerID(), "h")
	r.EmitWorkerDead(ctx, id.NewWorkerID(), "h", "x")
	r.EmitChunkAssigned(ctx, &sched.Chunk{})
	r.EmitChunkCompleted(ctx, &sched.Chunk{}, time.Second)
	r.EmitItemFailed(ctx, "i", 1)
	r.EmitAllDone(ctx, work.Results{}, nil)
	r.EmitShutdown(ctx)
}

func TestRegistry_MultipleExtensionsOrderPreserved(t *testing.T) {
	r := hook.NewRegistry(slog.Default())
	ext1 := &allHooksExt{}
	ext2 := &allHooksExt{}
	r.Register(ext1)
	r.Register(ext2)

	ctx := context.Background()
	r.EmitWorkerReady(ctx, id.NewWorkerID(), "hostA")

	// Both should be called.
	if len(ext1.calls) != 1 {
		t.Errorf("ext1: expected 1 call, got %d", len(ext1.calls))
	}
	if len(ext2.calls) != 1 {
		t.Errorf("ext2: expected 1 call, got %d", len(ext2.calls))
	}
}
