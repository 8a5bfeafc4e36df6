// Package sched partitions pending work into chunks and assigns them to
// workers. Reclaiming a dead worker's chunk — items revert to pending
// unless their retry budget is exhausted — is the engine's fault
// tolerance mechanism: work is never lost to a crashed worker, only
// delayed.
package sched

import (
	"time"

	"github.com/ostrokach/biskit/id"
)

// Chunk is an ordered set of work item identifiers assigned together to
// one worker.
type Chunk struct {
	ID       id.ChunkID  `json:"id" msgpack:"id"`
	ItemIDs  []string    `json:"item_ids" msgpack:"item_ids"`
	WorkerID id.WorkerID `json:"worker_id" msgpack:"worker_id"`

	// AssignedAt records when the chunk was handed to its worker.
	AssignedAt time.Time `json:"assigned_at" msgpack:"assigned_at"`

	// Deadline is the liveness deadline: if no frame arrives from the
	// owning worker before it, the worker is presumed dead. Any frame
	// from the worker pushes it forward.
	Deadline time.Time `json:"deadline" msgpack:"deadline"`

	// outstanding tracks items still awaiting a result. Workers may
	// deliver results for a chunk across several frames.
	outstanding map[string]struct{}
}

func newChunk(workerID id.WorkerID, itemIDs []string, now time.Time, liveness time.Duration) *Chunk {
	c := &Chunk{
		ID:          id.NewChunkID(),
		ItemIDs:     itemIDs,
		WorkerID:    workerID,
		AssignedAt:  now,
		Deadline:    now.Add(liveness),
		outstanding: make(map[string]struct{}, len(itemIDs)),
	}
	for _, itemID := range itemIDs {
		c.outstanding[itemID] = struct{}{}
	}
	return c
}

// Deliver records an arrived result for one item and reports whether
// the chunk is now fully delivered. Unknown identifiers are ignored.
func (c *Chunk) Deliver(itemID string) (complete bool) {
	delete(c.outstanding, itemID)
	return len(c.outstanding) == 0
}

// Outstanding returns how many items still await a result.
func (c *Chunk) Outstanding() int { return len(c.outstanding) }

// OutstandingIDs returns the identifiers still awaiting a result, in
// chunk order.
func (c *Chunk) OutstandingIDs() []string {
	ids := make([]string, 0, len(c.outstanding))
	for _, itemID := range c.ItemIDs {
		if _, ok := c.outstanding[itemID]; ok {
			ids = append(ids, itemID)
		}
	}
	return ids
}
