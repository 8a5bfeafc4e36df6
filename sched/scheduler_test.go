package sched_test

import (
	"errors"
	"testing"
	"time"

	"github.com/ostrokach/biskit"
	"github.com/ostrokach/biskit/backoff"
	"github.com/ostrokach/biskit/id"
	"github.com/ostrokach/biskit/sched"
	"github.com/ostrokach/biskit/work"
)

func setupScheduler(t *testing.T, n, chunkSize, maxRetries int) (*sched.Scheduler, *work.Registry) {
	t.Helper()
	items := make(map[string][]byte, n)
	for i := 0; i < n; i++ {
		items[string(rune('a'+i))] = []byte{byte(i)}
	}
	reg, err := work.NewRegistry(items, maxRetries)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	s, err := sched.New(reg, chunkSize, sched.WithBackoff(backoff.None{}))
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	return s, reg
}

func TestNew_BadChunkSize(t *testing.T) {
	reg, _ := work.NewRegistry(map[string][]byte{"a": nil}, 0)
	if _, err := sched.New(reg, 0); !errors.Is(err, biskit.ErrBadChunkSize) {
		t.Errorf("expected ErrBadChunkSize, got %v", err)
	}
}

func TestNextChunk_Partitioning(t *testing.T) {
	// 10 items, chunk size 3 → chunks of size 3, 3, 3, 1.
	s, _ := setupScheduler(t, 10, 3, 0)
	now := time.Now()

	var sizes []int
	for {
		c, err := s.NextChunk(id.NewWorkerID(), now)
		if err != nil {
			t.Fatalf("next chunk: %v", err)
		}
		if c == nil {
			break
		}
		sizes = append(sizes, len(c.ItemIDs))
	}

	want := []int{3, 3, 3, 1}
	if len(sizes) != len(want) {
		t.Fatalf("dispatched %d chunks, want %d", len(sizes), len(want))
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Errorf("chunk %d size = %d, want %d", i, sizes[i], want[i])
		}
	}
	if s.Inflight() != 4 {
		t.Errorf("inflight = %d, want 4", s.Inflight())
	}
}

func TestNextChunk_NoPending(t *testing.T) {
	s, _ := setupScheduler(t, 2, 5, 0)
	now := time.Now()

	c, err := s.NextChunk(id.NewWorkerID(), now)
	if err != nil || c == nil {
		t.Fatalf("first chunk: %v %v", c, err)
	}

	c2, err := s.NextChunk(id.NewWorkerID(), now)
	if err != nil {
		t.Fatalf("second chunk: %v", err)
	}
	if c2 != nil {
		t.Errorf("expected nil chunk when nothing pending, got %v", c2.ItemIDs)
	}
}

func TestDeliver_CompletesChunk(t *testing.T) {
	s, reg := setupScheduler(t, 3, 3, 0)
	now := time.Now()

	c, _ := s.NextChunk(id.NewWorkerID(), now)

	for i, itemID := range c.ItemIDs {
		accepted, complete, err := s.Deliver(c.ID, itemID)
		if err != nil {
			t.Fatalf("deliver %q: %v", itemID, err)
		}
		if !accepted {
			t.Errorf("deliver %q not accepted", itemID)
		}
		wantComplete := i == len(c.ItemIDs)-1
		if complete != wantComplete {
			t.Errorf("deliver %q complete = %v, want %v", itemID, complete, wantComplete)
		}
	}

	if s.Inflight() != 0 {
		t.Errorf("inflight = %d, want 0", s.Inflight())
	}
	if !reg.IsComplete() {
		t.Error("registry should be complete")
	}
}

func TestDeliver_LateResultDropped(t *testing.T) {
	s, _ := setupScheduler(t, 2, 2, 1)
	now := time.Now()

	c, _ := s.NextChunk(id.NewWorkerID(), now)
	if _, err := s.Reclaim(c, "worker died", now); err != nil {
		t.Fatalf("reclaim: %v", err)
	}

	// The worker resends its result after the chunk was reclaimed.
	accepted, complete, err := s.Deliver(c.ID, c.ItemIDs[0])
	if err != nil {
		t.Fatalf("late deliver: %v", err)
	}
	if accepted {
		t.Error("late delivery must be dropped, not accepted")
	}
	if complete {
		t.Error("late delivery must not complete a reclaimed chunk")
	}
}

func TestReclaim_ItemsReturnToPending(t *testing.T) {
	s, reg := setupScheduler(t, 3, 3, 1)
	now := time.Now()

	c, _ := s.NextChunk(id.NewWorkerID(), now)
	permanent, err := s.Reclaim(c, "worker died", now)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if len(permanent) != 0 {
		t.Errorf("permanent = %v, want none with budget 1", permanent)
	}

	pending, assigned, _, _ := reg.Counts()
	if pending != 3 || assigned != 0 {
		t.Errorf("pending/assigned = %d/%d, want 3/0", pending, assigned)
	}
}

func TestReclaim_ExhaustedBudget(t *testing.T) {
	s, reg := setupScheduler(t, 1, 1, 0)
	now := time.Now()

	c, _ := s.NextChunk(id.NewWorkerID(), now)
	permanent, err := s.Reclaim(c, "worker died", now)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if len(permanent) != 1 || permanent[0] != "a" {
		t.Errorf("permanent = %v, want [a]", permanent)
	}

	_, _, _, failed := reg.Counts()
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
}

func TestReclaim_SkipsDeliveredItems(t *testing.T) {
	s, reg := setupScheduler(t, 2, 2, 0)
	now := time.Now()

	c, _ := s.NextChunk(id.NewWorkerID(), now)
	if _, _, err := s.Deliver(c.ID, c.ItemIDs[0]); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	permanent, err := s.Reclaim(c, "worker died", now)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if len(permanent) != 1 {
		t.Fatalf("permanent = %v, want only the undelivered item", permanent)
	}

	it, _ := reg.Get(c.ItemIDs[0])
	if it.Status != work.StatusDone {
		t.Errorf("delivered item status = %q, want done", it.Status)
	}
}

func TestExpired(t *testing.T) {
	reg, _ := work.NewRegistry(map[string][]byte{"a": nil}, 0)
	s, err := sched.New(reg, 1, sched.WithLiveness(time.Minute))
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}

	now := time.Now()
	c, _ := s.NextChunk(id.NewWorkerID(), now)

	if got := s.Expired(now.Add(30 * time.Second)); len(got) != 0 {
		t.Errorf("expired before deadline: %v", got)
	}

	got := s.Expired(now.Add(2 * time.Minute))
	if len(got) != 1 || got[0].ID != c.ID {
		t.Errorf("expired = %v, want the assigned chunk", got)
	}

	// Touch pushes the deadline forward.
	s.Touch(c.ID, now.Add(2*time.Minute))
	if got := s.Expired(now.Add(2*time.Minute + 30*time.Second)); len(got) != 0 {
		t.Errorf("expired after touch: %v", got)
	}
}

func TestCancel_ReturnsItemsWithoutPenalty(t *testing.T) {
	s, reg := setupScheduler(t, 3, 3, 0)
	now := time.Now()

	c, err := s.NextChunk(id.NewWorkerID(), now)
	if err != nil {
		t.Fatalf("next chunk: %v", err)
	}
	if err := s.Cancel(c.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	pending, assigned, _, failed := reg.Counts()
	if pending != 3 || assigned != 0 || failed != 0 {
		t.Fatalf("counts = %d pending, %d assigned, %d failed", pending, assigned, failed)
	}
	if s.Inflight() != 0 {
		t.Fatalf("inflight = %d, want 0", s.Inflight())
	}

	// Cancelled items cost no attempt even at budget zero.
	it, _ := reg.Get(c.ItemIDs[0])
	if it.Attempts != 0 {
		t.Errorf("attempts = %d, want 0", it.Attempts)
	}

	// Cancelling an unknown chunk is a no-op.
	if err := s.Cancel(id.NewChunkID()); err != nil {
		t.Fatalf("cancel unknown: %v", err)
	}
}

func TestDeliver_ForeignItemIgnored(t *testing.T) {
	s, reg := setupScheduler(t, 4, 2, 0)
	now := time.Now()

	c1, err := s.NextChunk(id.NewWorkerID(), now)
	if err != nil {
		t.Fatalf("next chunk: %v", err)
	}
	c2, err := s.NextChunk(id.NewWorkerID(), now)
	if err != nil {
		t.Fatalf("next chunk: %v", err)
	}

	// A result for c2's item sent against c1 must not complete anything.
	accepted, complete, err := s.Deliver(c1.ID, c2.ItemIDs[0])
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if accepted {
		t.Fatal("foreign item must be dropped, not accepted")
	}
	if complete {
		t.Fatal("foreign item must not complete the chunk")
	}

	it, _ := reg.Get(c2.ItemIDs[0])
	if it.Status != work.StatusAssigned {
		t.Errorf("status = %q, want assigned (untouched)", it.Status)
	}
	if c1.Outstanding() != 2 {
		t.Errorf("outstanding = %d, want 2", c1.Outstanding())
	}
}
