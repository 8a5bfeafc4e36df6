// Package wire implements the Biskit worker protocol — the message
// envelope exchanged between the coordinator and its remote workers. A
// worker receives exactly one init frame, then zero or more chunk
// frames, and answers each chunk with one or more result frames. Ping
// and pong frames carry liveness; any frame from a worker refreshes its
// chunk's liveness deadline.
package wire

import (
	"time"

	"github.com/ostrokach/biskit/id"
)

// FrameType identifies the frame category.
type FrameType string

const (
	// FrameInit carries the one-time caller-defined initialization
	// payload, sent to a worker before any chunk.
	FrameInit FrameType = "init"
	// FrameReady is the worker's acknowledgement of init; the worker is
	// eligible for chunks after it.
	FrameReady FrameType = "ready"
	// FrameChunk carries the payloads of one chunk, keyed by item ID.
	FrameChunk FrameType = "chunk"
	// FrameResult carries results for some or all items of the
	// worker's current chunk, keyed by item ID.
	FrameResult FrameType = "result"
	// FramePing and FramePong carry liveness probes.
	FramePing FrameType = "ping"
	FramePong FrameType = "pong"
	// FrameShutdown asks the worker to terminate.
	FrameShutdown FrameType = "shutdown"
	// FrameErr reports a worker-side failure for the current chunk.
	FrameErr FrameType = "error"
)

// Frame is the protocol envelope. Every message exchanged between the
// coordinator and a worker is a Frame. Identifiers travel as TypeID
// strings so both codecs stay trivially portable.
type Frame struct {
	// ID uniquely identifies this frame.
	ID string `json:"id" msgpack:"id"`

	// Type categorizes the frame.
	Type FrameType `json:"type" msgpack:"type"`

	// WorkerID names the worker this frame belongs to.
	WorkerID string `json:"worker_id,omitempty" msgpack:"worker_id,omitempty"`

	// ChunkID correlates chunk and result frames.
	ChunkID string `json:"chunk_id,omitempty" msgpack:"chunk_id,omitempty"`

	// Init carries the caller-defined initialization payload.
	Init []byte `json:"init,omitempty" msgpack:"init,omitempty"`

	// Items carries item payloads for chunk frames.
	Items map[string][]byte `json:"items,omitempty" msgpack:"items,omitempty"`

	// Results carries per-item results for result frames.
	Results map[string][]byte `json:"results,omitempty" msgpack:"results,omitempty"`

	// Error carries failure details for error frames.
	Error *ErrorDetail `json:"error,omitempty" msgpack:"error,omitempty"`

	// Timestamp records when this frame was created.
	Timestamp time.Time `json:"ts" msgpack:"ts"`
}

// ErrorDetail describes a worker-side failure.
type ErrorDetail struct {
	Message string `json:"message" msgpack:"message"`
	Details string `json:"details,omitempty" msgpack:"details,omitempty"`
}

// NewInitFrame creates the one-time initialization frame for a worker.
func NewInitFrame(workerID id.WorkerID, initPayload []byte) *Frame {
	return &Frame{
		ID:        id.NewFrameID().String(),
		Type:      FrameInit,
		WorkerID:  workerID.String(),
		Init:      initPayload,
		Timestamp: time.Now().UTC(),
	}
}

// NewReadyFrame creates a worker's init acknowledgement.
func NewReadyFrame(workerID id.WorkerID) *Frame {
	return &Frame{
		ID:        id.NewFrameID().String(),
		Type:      FrameReady,
		WorkerID:  workerID.String(),
		Timestamp: time.Now().UTC(),
	}
}

// NewChunkFrame creates a chunk dispatch frame.
func NewChunkFrame(workerID id.WorkerID, chunkID id.ChunkID, items map[string][]byte) *Frame {
	return &Frame{
		ID:        id.NewFrameID().String(),
		Type:      FrameChunk,
		WorkerID:  workerID.String(),
		ChunkID:   chunkID.String(),
		Items:     items,
		Timestamp: time.Now().UTC(),
	}
}

// NewResultFrame creates a result frame covering some or all items of a
// chunk.
func NewResultFrame(workerID id.WorkerID, chunkID id.ChunkID, results map[string][]byte) *Frame {
	return &Frame{
		ID:        id.NewFrameID().String(),
		Type:      FrameResult,
		WorkerID:  workerID.String(),
		ChunkID:   chunkID.String(),
		Results:   results,
		Timestamp: time.Now().UTC(),
	}
}

// NewErrorFrame creates a worker-side failure report for a chunk.
func NewErrorFrame(workerID id.WorkerID, chunkID id.ChunkID, message string) *Frame {
	return &Frame{
		ID:        id.NewFrameID().String(),
		Type:      FrameErr,
		WorkerID:  workerID.String(),
		ChunkID:   chunkID.String(),
		Error:     &ErrorDetail{Message: message},
		Timestamp: time.Now().UTC(),
	}
}

// NewPingFrame creates a liveness probe.
func NewPingFrame(workerID id.WorkerID) *Frame {
	return &Frame{
		ID:        id.NewFrameID().String(),
		Type:      FramePing,
		WorkerID:  workerID.String(),
		Timestamp: time.Now().UTC(),
	}
}

// NewPongFrame creates a liveness probe answer.
func NewPongFrame(workerID id.WorkerID) *Frame {
	return &Frame{
		ID:        id.NewFrameID().String(),
		Type:      FramePong,
		WorkerID:  workerID.String(),
		Timestamp: time.Now().UTC(),
	}
}

// NewShutdownFrame asks a worker to terminate.
func NewShutdownFrame(workerID id.WorkerID) *Frame {
	return &Frame{
		ID:        id.NewFrameID().String(),
		Type:      FrameShutdown,
		WorkerID:  workerID.String(),
		Timestamp: time.Now().UTC(),
	}
}

// The Raw constructors take identifiers as the strings they travel as
// on the wire. The worker side never parses IDs back into typed form;
// it only echoes what the coordinator sent.

// NewReadyFrameRaw creates an init acknowledgement echoing workerID.
func NewReadyFrameRaw(workerID string) *Frame {
	return &Frame{
		ID:        id.NewFrameID().String(),
		Type:      FrameReady,
		WorkerID:  workerID,
		Timestamp: time.Now().UTC(),
	}
}

// NewResultFrameRaw creates a result frame echoing wire identifiers.
func NewResultFrameRaw(workerID, chunkID string, results map[string][]byte) *Frame {
	return &Frame{
		ID:        id.NewFrameID().String(),
		Type:      FrameResult,
		WorkerID:  workerID,
		ChunkID:   chunkID,
		Results:   results,
		Timestamp: time.Now().UTC(),
	}
}

// NewErrorFrameRaw creates a chunk failure report echoing wire identifiers.
func NewErrorFrameRaw(workerID, chunkID, message string) *Frame {
	return &Frame{
		ID:        id.NewFrameID().String(),
		Type:      FrameErr,
		WorkerID:  workerID,
		ChunkID:   chunkID,
		Error:     &ErrorDetail{Message: message},
		Timestamp: time.Now().UTC(),
	}
}

// NewPongFrameRaw creates a liveness probe answer echoing workerID.
func NewPongFrameRaw(workerID string) *Frame {
	return &Frame{
		ID:        id.NewFrameID().String(),
		Type:      FramePong,
		WorkerID:  workerID,
		Timestamp: time.Now().UTC(),
	}
}
