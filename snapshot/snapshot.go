// Package snapshot defines run checkpoints and the Store interface for
// persisting them. A snapshot records each item's position in its
// lifecycle plus every result collected so far; restoring one into a
// fresh coordinator resumes the run without recomputing finished items.
// Backends live in the memory, file, and redis subpackages.
package snapshot

import (
	"context"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ostrokach/biskit/id"
)

// Snapshot is a point-in-time checkpoint of a run. Assigned items are
// recorded separately, but a restore re-queues them as pending: the
// workers they were on do not survive the snapshot.
type Snapshot struct {
	ID        string    `json:"id" msgpack:"id"`
	CreatedAt time.Time `json:"created_at" msgpack:"created_at"`

	// TotalItems guards against restoring into a run built over a
	// different item set.
	TotalItems int `json:"total_items" msgpack:"total_items"`

	Pending  []string `json:"pending,omitempty" msgpack:"pending,omitempty"`
	Assigned []string `json:"assigned,omitempty" msgpack:"assigned,omitempty"`
	Done     []string `json:"done,omitempty" msgpack:"done,omitempty"`
	Failed   []string `json:"failed,omitempty" msgpack:"failed,omitempty"`

	// Results holds the result payload of every done item.
	Results map[string][]byte `json:"results,omitempty" msgpack:"results,omitempty"`
}

// New creates an empty snapshot with a fresh ID.
func New() *Snapshot {
	return &Snapshot{
		ID:        id.NewSnapshotID().String(),
		CreatedAt: time.Now().UTC(),
	}
}

// Encode serializes a snapshot with msgpack, the format snapshots are
// persisted in.
func Encode(s *Snapshot) ([]byte, error) {
	return msgpack.Marshal(s)
}

// Decode deserializes a snapshot.
func Decode(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Store persists snapshots. Implementations must be safe for
// concurrent use.
type Store interface {
	// Save persists a snapshot, overwriting any snapshot with the
	// same ID.
	Save(ctx context.Context, s *Snapshot) error

	// Load retrieves a snapshot by ID. Returns
	// biskit.ErrSnapshotNotFound if it does not exist.
	Load(ctx context.Context, snapshotID string) (*Snapshot, error)

	// List returns the IDs of all stored snapshots, sorted.
	List(ctx context.Context) ([]string, error)

	// Delete removes a snapshot. Deleting a missing snapshot is not
	// an error.
	Delete(ctx context.Context, snapshotID string) error
}
