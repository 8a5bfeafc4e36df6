package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/ostrokach/biskit"
	"github.com/ostrokach/biskit/snapshot"
	"github.com/ostrokach/biskit/work"
)

// ErrNoSnapshotStore is returned by Restore when the engine was built
// without a snapshot store.
var ErrNoSnapshotStore = errors.New("engine: no snapshot store configured")

// Snapshot captures the run's current item partitions and results, and
// persists the checkpoint if a store is configured. Items assigned to
// workers at capture time are recorded as assigned but will re-run as
// pending after a restore.
//
// Safe to call at any point of the run; checkpointing an untouched or
// finished run is valid.
func (e *Engine) Snapshot(ctx context.Context) (*snapshot.Snapshot, error) {
	e.mu.Lock()
	s := snapshot.New()
	s.TotalItems = e.registry.Len()
	s.Pending = e.registry.IDsByStatus(work.StatusPending)
	s.Assigned = e.registry.IDsByStatus(work.StatusAssigned)
	s.Done = e.registry.IDsByStatus(work.StatusDone)
	s.Failed = e.registry.IDsByStatus(work.StatusFailed)
	s.Results = e.results.Clone()
	e.mu.Unlock()

	if e.snapStore != nil {
		if err := e.snapStore.Save(ctx, s); err != nil {
			return nil, fmt.Errorf("engine: snapshot save: %w", err)
		}
	}
	return s, nil
}

// Restore loads a checkpoint from the snapshot store and applies it.
// Must be called before Start.
func (e *Engine) Restore(ctx context.Context, snapshotID string) error {
	if e.snapStore == nil {
		return ErrNoSnapshotStore
	}
	s, err := e.snapStore.Load(ctx, snapshotID)
	if err != nil {
		return err
	}
	return e.RestoreSnapshot(s)
}

// RestoreSnapshot applies a checkpoint taken over the same item
// mapping: done and failed items keep their outcome, and everything
// else — including items that were assigned when the checkpoint was
// taken — is re-queued. The engine must not have started yet.
func (e *Engine) RestoreSnapshot(s *snapshot.Snapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateNew {
		return biskit.ErrAlreadyStarted
	}
	if s.TotalItems != e.registry.Len() {
		return fmt.Errorf("%w: snapshot has %d items, run has %d",
			biskit.ErrSnapshotMismatch, s.TotalItems, e.registry.Len())
	}

	if err := e.registry.Restore(s.Done, s.Failed); err != nil {
		return fmt.Errorf("%w: %s", biskit.ErrSnapshotMismatch, err)
	}
	e.scheduler.Reset()

	e.results = make(work.Results, len(s.Results))
	for itemID, payload := range s.Results {
		e.results[itemID] = payload
	}
	return nil
}
