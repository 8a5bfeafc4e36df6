package work

import (
	"fmt"
	"sort"
	"time"

	"github.com/ostrokach/biskit"
	"github.com/ostrokach/biskit/id"
)

// Registry owns every work item and its status. It is not safe for
// concurrent use: the coordinator loop is the only writer, and readers
// on other goroutines must go through the engine's locked accessors.
//
// Invariant: every identifier registered at construction is in exactly
// one of {pending, assigned, done, failed} at all times.
type Registry struct {
	items map[string]*Item

	// order fixes the scheduling order of identifiers so chunk
	// composition is deterministic for a given item mapping.
	order []string

	maxRetries int

	pending  int
	assigned int
	done     int
	failed   int
}

// NewRegistry creates a registry seeded with the given item mapping, all
// items pending. Identifiers are ordered lexicographically so that runs
// over the same mapping are reproducible. maxRetries is the per-item
// retry budget across worker failures.
func NewRegistry(items map[string][]byte, maxRetries int) (*Registry, error) {
	if len(items) == 0 {
		return nil, biskit.ErrNoItems
	}

	r := &Registry{
		items:      make(map[string]*Item, len(items)),
		order:      make([]string, 0, len(items)),
		maxRetries: maxRetries,
		pending:    len(items),
	}

	for itemID := range items {
		r.order = append(r.order, itemID)
	}
	sort.Strings(r.order)

	for _, itemID := range r.order {
		r.items[itemID] = &Item{
			Entity:  biskit.NewEntity(),
			ID:      itemID,
			Payload: items[itemID],
			Status:  StatusPending,
		}
	}

	return r, nil
}

// Len returns the total number of registered items.
func (r *Registry) Len() int { return len(r.items) }

// MaxRetries returns the per-item retry budget.
func (r *Registry) MaxRetries() int { return r.maxRetries }

// Get returns a copy of the item with the given identifier.
func (r *Registry) Get(itemID string) (Item, bool) {
	it, ok := r.items[itemID]
	if !ok {
		return Item{}, false
	}
	return *it, true
}

// PendingIDs returns up to limit pending identifiers in registry order,
// skipping items whose retry backoff has not elapsed at now. A limit of
// zero or less means no limit.
func (r *Registry) PendingIDs(limit int, now time.Time) []string {
	var ids []string
	for _, itemID := range r.order {
		it := r.items[itemID]
		if it.Status != StatusPending {
			continue
		}
		if !it.EligibleAt.IsZero() && it.EligibleAt.After(now) {
			continue
		}
		ids = append(ids, itemID)
		if limit > 0 && len(ids) == limit {
			break
		}
	}
	return ids
}

// MarkAssigned transitions the given pending items to assigned,
// referencing the chunk that now owns them. Only pending items may be
// assigned.
func (r *Registry) MarkAssigned(ids []string, chunkID id.ChunkID) error {
	// Validate first so a partial failure never leaves a mixed batch.
	for _, itemID := range ids {
		it, ok := r.items[itemID]
		if !ok {
			return fmt.Errorf("work: assign %q: %w", itemID, biskit.ErrItemNotFound)
		}
		if it.Status != StatusPending {
			return fmt.Errorf("work: assign %q from %q: %w", itemID, it.Status, biskit.ErrInvalidState)
		}
	}

	for _, itemID := range ids {
		it := r.items[itemID]
		it.Status = StatusAssigned
		it.ChunkID = chunkID
		it.Touch()
	}
	r.pending -= len(ids)
	r.assigned += len(ids)
	return nil
}

// MarkDone transitions an assigned item to done. Duplicate results for
// an already-done item are ignored so a worker resending a chunk result
// after reclaim does not corrupt the counts.
func (r *Registry) MarkDone(itemID string) error {
	it, ok := r.items[itemID]
	if !ok {
		return fmt.Errorf("work: done %q: %w", itemID, biskit.ErrItemNotFound)
	}
	if it.Status == StatusDone {
		return nil
	}
	if it.Status != StatusAssigned {
		return fmt.Errorf("work: done %q from %q: %w", itemID, it.Status, biskit.ErrInvalidState)
	}

	it.Status = StatusDone
	it.ChunkID = id.Nil
	it.LastError = ""
	it.Touch()
	r.assigned--
	r.done++
	return nil
}

// Release hands an assigned item back after its worker died. The item
// returns to pending — deferred until eligibleAt — unless its retry
// budget is exhausted, in which case it is permanently failed. Release
// reports whether the item was permanently failed.
func (r *Registry) Release(itemID, reason string, eligibleAt time.Time) (bool, error) {
	it, ok := r.items[itemID]
	if !ok {
		return false, fmt.Errorf("work: release %q: %w", itemID, biskit.ErrItemNotFound)
	}
	if it.Status != StatusAssigned {
		return false, fmt.Errorf("work: release %q from %q: %w", itemID, it.Status, biskit.ErrInvalidState)
	}

	it.Attempts++
	it.ChunkID = id.Nil
	it.LastError = reason
	it.Touch()
	r.assigned--

	if it.Attempts > r.maxRetries {
		it.Status = StatusFailed
		r.failed++
		return true, nil
	}

	it.Status = StatusPending
	it.EligibleAt = eligibleAt
	r.pending++
	return false, nil
}

// Unassign returns an assigned item to pending without charging its
// retry budget. Used when a chunk assignment is withdrawn before the
// worker saw it, e.g. a host throttle rejecting the dispatch.
func (r *Registry) Unassign(itemID string) error {
	it, ok := r.items[itemID]
	if !ok {
		return fmt.Errorf("work: unassign %q: %w", itemID, biskit.ErrItemNotFound)
	}
	if it.Status != StatusAssigned {
		return fmt.Errorf("work: unassign %q from %q: %w", itemID, it.Status, biskit.ErrInvalidState)
	}

	it.Status = StatusPending
	it.ChunkID = id.Nil
	it.Touch()
	r.assigned--
	r.pending++
	return nil
}

// IsComplete reports whether no pending or assigned items remain.
func (r *Registry) IsComplete() bool {
	return r.pending == 0 && r.assigned == 0
}

// Counts returns the number of items in each status.
func (r *Registry) Counts() (pending, assigned, done, failed int) {
	return r.pending, r.assigned, r.done, r.failed
}

// Payloads returns the payloads for the given identifiers, for building
// a chunk message.
func (r *Registry) Payloads(ids []string) map[string][]byte {
	out := make(map[string][]byte, len(ids))
	for _, itemID := range ids {
		if it, ok := r.items[itemID]; ok {
			out[itemID] = it.Payload
		}
	}
	return out
}

// IDsByStatus returns all identifiers currently in the given status, in
// registry order.
func (r *Registry) IDsByStatus(s Status) []string {
	var ids []string
	for _, itemID := range r.order {
		if r.items[itemID].Status == s {
			ids = append(ids, itemID)
		}
	}
	return ids
}

// Restore rewrites the registry's partitions from a checkpoint: done and
// failed identifiers keep their terminal status, everything else —
// including items that were assigned when the checkpoint was taken — is
// re-queued as pending, since the original worker assignment is not
// resumable across a restart.
func (r *Registry) Restore(doneIDs, failedIDs []string) error {
	doneSet := make(map[string]struct{}, len(doneIDs))
	for _, itemID := range doneIDs {
		if _, ok := r.items[itemID]; !ok {
			return fmt.Errorf("work: restore done %q: %w", itemID, biskit.ErrItemNotFound)
		}
		doneSet[itemID] = struct{}{}
	}
	failedSet := make(map[string]struct{}, len(failedIDs))
	for _, itemID := range failedIDs {
		if _, ok := r.items[itemID]; !ok {
			return fmt.Errorf("work: restore failed %q: %w", itemID, biskit.ErrItemNotFound)
		}
		failedSet[itemID] = struct{}{}
	}

	r.pending, r.assigned, r.done, r.failed = 0, 0, 0, 0
	for _, itemID := range r.order {
		it := r.items[itemID]
		it.ChunkID = id.Nil
		it.EligibleAt = time.Time{}
		switch {
		case contains(doneSet, itemID):
			it.Status = StatusDone
			r.done++
		case contains(failedSet, itemID):
			it.Status = StatusFailed
			r.failed++
		default:
			it.Status = StatusPending
			r.pending++
		}
	}
	return nil
}

func contains(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
