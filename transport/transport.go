// Package transport abstracts how the coordinator reaches its workers.
// A Transport spawns a Process per worker slot; the coordinator talks to
// the process exclusively in frames. Implementations live in the local
// and ws subpackages.
package transport

import (
	"context"
	"errors"

	"github.com/ostrokach/biskit/id"
	"github.com/ostrokach/biskit/wire"
)

// ErrClosed is returned by Send after a process has terminated.
var ErrClosed = errors.New("transport: process closed")

// Process is a live worker endpoint. Frames returns the inbound frame
// stream; the channel is closed when the worker disconnects or dies,
// which is the only death signal the coordinator relies on.
type Process interface {
	// Send delivers a frame to the worker. It must not block
	// indefinitely; implementations return ErrClosed once the
	// process is gone.
	Send(f *wire.Frame) error

	// Frames returns the stream of frames produced by the worker.
	// Closed on disconnect.
	Frames() <-chan *wire.Frame

	// Close tears the process down. Idempotent.
	Close() error
}

// Transport spawns worker processes on hosts.
type Transport interface {
	Spawn(ctx context.Context, host string, workerID id.WorkerID) (Process, error)
}
