package sched

import (
	"fmt"
	"time"

	"github.com/ostrokach/biskit"
	"github.com/ostrokach/biskit/backoff"
	"github.com/ostrokach/biskit/id"
	"github.com/ostrokach/biskit/work"
)

// Scheduler builds chunks from the work registry and tracks in-flight
// assignments. Like the registry it is single-threaded: the coordinator
// loop is its only caller.
type Scheduler struct {
	registry  *work.Registry
	chunkSize int
	liveness  time.Duration
	bo        backoff.Strategy

	inflight map[string]*Chunk // keyed by chunk ID string
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLiveness sets the per-chunk liveness deadline window.
func WithLiveness(d time.Duration) Option {
	return func(s *Scheduler) { s.liveness = d }
}

// WithBackoff sets the retry backoff strategy applied to reclaimed items.
func WithBackoff(bo backoff.Strategy) Option {
	return func(s *Scheduler) { s.bo = bo }
}

// New creates a Scheduler over the given registry. Chunk size is a fixed
// configuration value; there is no dynamic re-sizing based on observed
// worker throughput.
func New(registry *work.Registry, chunkSize int, opts ...Option) (*Scheduler, error) {
	if chunkSize <= 0 {
		return nil, biskit.ErrBadChunkSize
	}

	s := &Scheduler{
		registry:  registry,
		chunkSize: chunkSize,
		liveness:  2 * time.Minute,
		bo:        backoff.DefaultStrategy(),
		inflight:  make(map[string]*Chunk),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ChunkSize returns the configured chunk size.
func (s *Scheduler) ChunkSize() int { return s.chunkSize }

// Inflight returns the number of chunks currently assigned to workers.
func (s *Scheduler) Inflight() int { return len(s.inflight) }

// NextChunk pulls up to the chunk size of eligible pending identifiers,
// marks them assigned to the given worker, and returns the chunk. It
// returns nil when no pending item is currently eligible.
func (s *Scheduler) NextChunk(workerID id.WorkerID, now time.Time) (*Chunk, error) {
	ids := s.registry.PendingIDs(s.chunkSize, now)
	if len(ids) == 0 {
		return nil, nil //nolint:nilnil // nil chunk means no eligible work
	}

	c := newChunk(workerID, ids, now, s.liveness)
	if err := s.registry.MarkAssigned(ids, c.ID); err != nil {
		return nil, fmt.Errorf("sched: next chunk: %w", err)
	}

	s.inflight[c.ID.String()] = c
	return c, nil
}

// Deliver records one arrived result against its chunk and transitions
// the item to done. accepted reports whether the result counts: a late
// result for a reclaimed chunk, or for an item the chunk does not
// await, is dropped with accepted=false, and the caller must not record
// it — the item may already be permanently failed. When the chunk's
// last item is delivered the chunk is retired and complete is true.
func (s *Scheduler) Deliver(chunkID id.ChunkID, itemID string) (accepted, complete bool, err error) {
	c, ok := s.inflight[chunkID.String()]
	if !ok {
		// Late result from a reclaimed chunk; the item was either
		// re-assigned or already resolved. Drop it.
		return false, false, nil
	}
	if _, awaited := c.outstanding[itemID]; !awaited {
		// Duplicate result, or an item this chunk never held.
		return false, false, nil
	}

	if err := s.registry.MarkDone(itemID); err != nil {
		return false, false, err
	}

	if c.Deliver(itemID) {
		delete(s.inflight, chunkID.String())
		return true, true, nil
	}
	return true, false, nil
}

// Get returns an in-flight chunk by ID.
func (s *Scheduler) Get(chunkID id.ChunkID) (*Chunk, bool) {
	c, ok := s.inflight[chunkID.String()]
	return c, ok
}

// Cancel withdraws an undispatched chunk, returning its items to
// pending without charging their retry budgets. Used when the worker's
// host throttles the assignment before anything was sent.
func (s *Scheduler) Cancel(chunkID id.ChunkID) error {
	c, ok := s.inflight[chunkID.String()]
	if !ok {
		return nil
	}
	delete(s.inflight, chunkID.String())

	for _, itemID := range c.OutstandingIDs() {
		if err := s.registry.Unassign(itemID); err != nil {
			return fmt.Errorf("sched: cancel: %w", err)
		}
	}
	return nil
}

// Touch pushes the liveness deadline of the given chunk forward. Called
// for every frame received from the owning worker.
func (s *Scheduler) Touch(chunkID id.ChunkID, now time.Time) {
	if c, ok := s.inflight[chunkID.String()]; ok {
		c.Deadline = now.Add(s.liveness)
	}
}

// Expired returns the in-flight chunks whose liveness deadline has
// passed. Exceeding the deadline is treated identically to an explicit
// worker death notification.
func (s *Scheduler) Expired(now time.Time) []*Chunk {
	var out []*Chunk
	for _, c := range s.inflight {
		if now.After(c.Deadline) {
			out = append(out, c)
		}
	}
	return out
}

// Reclaim reverts every undelivered item of the chunk back to pending so
// a different worker can pick it up — deferred by the retry backoff —
// and permanently fails items whose retry budget is exhausted. It
// returns the permanently failed identifiers.
func (s *Scheduler) Reclaim(c *Chunk, reason string, now time.Time) ([]string, error) {
	delete(s.inflight, c.ID.String())

	var permanent []string
	for _, itemID := range c.OutstandingIDs() {
		it, ok := s.registry.Get(itemID)
		if !ok {
			return permanent, fmt.Errorf("sched: reclaim %q: %w", itemID, biskit.ErrItemNotFound)
		}

		eligibleAt := now.Add(s.bo.Delay(it.Attempts + 1))
		exhausted, err := s.registry.Release(itemID, reason, eligibleAt)
		if err != nil {
			return permanent, fmt.Errorf("sched: reclaim %q: %w", itemID, err)
		}
		if exhausted {
			permanent = append(permanent, itemID)
		}
	}
	return permanent, nil
}

// Reset drops all in-flight chunks. Used when restoring from a
// checkpoint, where assigned items have already been re-queued.
func (s *Scheduler) Reset() {
	s.inflight = make(map[string]*Chunk)
}
