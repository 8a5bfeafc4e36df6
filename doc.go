// Package biskit provides a master/slave work-distribution engine: a
// coordinator partitions a mapping of keyed, opaque work items into
// chunks, dispatches each chunk to one of a pool of remote workers, and
// collects per-item results keyed by their original identifiers.
//
// Biskit is designed as a library, not a service. Construct an Engine
// with an item mapping, a transport, and a host list with niceness
// priorities, then either block:
//
//	eng, err := engine.New(items, tr, hostList,
//	    engine.WithConfig(cfg),
//	)
//	results, err := eng.CalculateResult(ctx)
//
// or run in the background and poll:
//
//	eng.Start(ctx)
//	p := eng.Progress()
//	snap, _ := eng.Snapshot(ctx)
//
// # Architecture
//
// The engine owns three subsystems: a work registry (per-item status),
// a chunk scheduler (partitioning, assignment, reclamation on worker
// death), and a worker pool (spawning, niceness-ordered idle selection,
// non-blocking result polling). A single coordinator goroutine mutates
// all three; concurrency comes from overlapping many outstanding remote
// chunks, never from shared mutation.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package biskit
