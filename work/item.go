// Package work holds the work registry: the full set of job items, their
// per-item status, and the accumulated result mapping. It is a pure data
// structure — the coordinator loop is its only writer.
package work

import (
	"time"

	"github.com/ostrokach/biskit"
	"github.com/ostrokach/biskit/id"
)

// Status represents the lifecycle status of a work item.
type Status string

const (
	// StatusPending means the item is waiting to be placed into a chunk.
	StatusPending Status = "pending"
	// StatusAssigned means the item is part of an in-flight chunk.
	StatusAssigned Status = "assigned"
	// StatusDone means a result for the item has arrived.
	StatusDone Status = "done"
	// StatusFailed means the item's retry budget is exhausted; it is
	// permanently failed and excluded from future scheduling.
	StatusFailed Status = "failed"
)

// Item is a unit of work identified by a caller-supplied key with an
// opaque payload. Items are created at engine construction and never
// destroyed until the engine itself is discarded.
type Item struct {
	biskit.Entity

	ID      string `json:"id" msgpack:"id"`
	Payload []byte `json:"payload" msgpack:"payload"`
	Status  Status `json:"status" msgpack:"status"`

	// Attempts counts how many times the item was handed back after a
	// worker death. It is compared against the registry's retry budget.
	Attempts int `json:"attempts" msgpack:"attempts"`

	// ChunkID references the live chunk while the item is assigned.
	ChunkID id.ChunkID `json:"chunk_id,omitempty" msgpack:"chunk_id,omitempty"`

	// EligibleAt defers re-scheduling of a reclaimed item (retry backoff).
	EligibleAt time.Time `json:"eligible_at,omitempty" msgpack:"eligible_at,omitempty"`

	// LastError records why the item last failed.
	LastError string `json:"last_error,omitempty" msgpack:"last_error,omitempty"`
}
