package sched_test

import (
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/ostrokach/biskit/backoff"
	"github.com/ostrokach/biskit/id"
	"github.com/ostrokach/biskit/sched"
	"github.com/ostrokach/biskit/work"
)

// Every item ends up done or failed exactly once, no matter how chunk
// deliveries and reclaims interleave.
func TestSchedulerResolvesEveryItemOnce(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 40).Draw(t, "items")
		chunkSize := rapid.IntRange(1, 10).Draw(t, "chunk_size")
		budget := rapid.IntRange(0, 3).Draw(t, "budget")

		items := make(map[string][]byte, n)
		for i := range n {
			items[fmt.Sprintf("item-%02d", i)] = []byte{byte(i)}
		}

		reg, err := work.NewRegistry(items, budget)
		if err != nil {
			t.Fatalf("NewRegistry: %v", err)
		}
		s, err := sched.New(reg, chunkSize, sched.WithBackoff(backoff.None{}))
		if err != nil {
			t.Fatalf("New: %v", err)
		}

		workerID := id.NewWorkerID()
		now := time.Unix(0, 0)
		delivered := make(map[string]int)

		for guard := 0; !reg.IsComplete(); guard++ {
			if guard > 10_000 {
				t.Fatalf("no progress after %d steps", guard)
			}

			c, err := s.NextChunk(workerID, now)
			if err != nil {
				t.Fatalf("NextChunk: %v", err)
			}
			if c == nil {
				t.Fatalf("registry incomplete but no chunk available")
			}
			if len(c.ItemIDs) > chunkSize {
				t.Fatalf("chunk has %d items, cap is %d", len(c.ItemIDs), chunkSize)
			}

			if rapid.Bool().Draw(t, "fail") {
				if _, err := s.Reclaim(c, "fault", now); err != nil {
					t.Fatalf("Reclaim: %v", err)
				}
			} else {
				for _, itemID := range c.ItemIDs {
					accepted, _, err := s.Deliver(c.ID, itemID)
					if err != nil {
						t.Fatalf("Deliver %s: %v", itemID, err)
					}
					if !accepted {
						t.Fatalf("Deliver %s dropped a live chunk's item", itemID)
					}
					delivered[itemID]++
				}
			}
			now = now.Add(time.Second)
		}

		pending, assigned, done, failed := reg.Counts()
		if pending != 0 || assigned != 0 {
			t.Fatalf("complete run left pending=%d assigned=%d", pending, assigned)
		}
		if done+failed != n {
			t.Fatalf("done=%d failed=%d, want sum %d", done, failed, n)
		}
		if done != len(delivered) {
			t.Fatalf("done=%d but %d distinct items delivered", done, len(delivered))
		}
		for itemID, count := range delivered {
			if count != 1 {
				t.Fatalf("item %s delivered %d times", itemID, count)
			}
		}
		if s.Inflight() != 0 {
			t.Fatalf("inflight=%d after completion", s.Inflight())
		}
	})
}
