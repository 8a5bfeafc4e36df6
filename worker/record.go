// Package worker tracks the coordinator's view of its worker fleet. A
// Pool spawns one Process per worker slot through a Transport, forwards
// every inbound frame onto a shared event channel, and keeps per-worker
// state so the scheduler can pick idle workers in niceness order.
package worker

import (
	"github.com/ostrokach/biskit/id"
	"github.com/ostrokach/biskit/transport"
	"github.com/ostrokach/biskit/wire"
)

// State is a worker's lifecycle state as seen by the coordinator.
type State string

const (
	// StateInitializing means the init frame was sent but no ready
	// acknowledgement has arrived yet.
	StateInitializing State = "initializing"
	// StateIdle means the worker is ready and holds no chunk.
	StateIdle State = "idle"
	// StateBusy means the worker holds an outstanding chunk.
	StateBusy State = "busy"
	// StateDead means the worker disconnected or timed out. Dead
	// workers never come back; their chunks are reclaimed.
	StateDead State = "dead"
)

// Host describes one machine workers run on. Niceness orders hosts for
// assignment; lower values are preferred.
type Host struct {
	Name     string
	Niceness int
	// Slots is the number of workers to spawn on this host. Zero
	// falls back to the pool default.
	Slots int
}

// Record is the coordinator's handle on one worker.
type Record struct {
	ID       id.WorkerID
	Host     string
	Niceness int
	State    State

	// ChunkID is the worker's outstanding chunk while Busy.
	ChunkID id.ChunkID

	proc transport.Process
}

// Event is one occurrence on the shared pool event channel: either a
// frame from a worker, or its death (Died=true, Frame=nil).
type Event struct {
	WorkerID id.WorkerID
	Frame    *wire.Frame
	Died     bool
}
