package biskit

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// Construction errors.
	ErrNoItems      = errors.New("biskit: empty item mapping")
	ErrBadChunkSize = errors.New("biskit: chunk size must be positive")
	ErrNoHosts      = errors.New("biskit: empty host list")
	ErrNoTransport  = errors.New("biskit: no transport configured")

	// Lifecycle errors.
	ErrAlreadyStarted = errors.New("biskit: engine already started")
	ErrNotStarted     = errors.New("biskit: engine not started")
	ErrShutdown       = errors.New("biskit: engine shut down")

	// Registry errors.
	ErrItemNotFound = errors.New("biskit: item not found")
	ErrInvalidState = errors.New("biskit: invalid status transition")

	// Snapshot errors.
	ErrSnapshotNotFound = errors.New("biskit: snapshot not found")
	ErrSnapshotMismatch = errors.New("biskit: snapshot does not match item mapping")
)

// DegradedPoolError reports that every worker died while pending or
// assigned work remained. Partial holds all results collected before the
// pool degraded so no completed work is lost.
type DegradedPoolError struct {
	Pending int
	Partial map[string][]byte
}

func (e *DegradedPoolError) Error() string {
	return fmt.Sprintf("biskit: all workers dead with %d items outstanding (%d results collected)",
		e.Pending, len(e.Partial))
}

// PermanentFailureError reports items whose retry budget was exhausted.
// The run itself completed: Partial holds the results of every item that
// did succeed, and FailedIDs lists the permanently failed identifiers.
type PermanentFailureError struct {
	FailedIDs []string
	Partial   map[string][]byte
}

func (e *PermanentFailureError) Error() string {
	ids := append([]string(nil), e.FailedIDs...)
	sort.Strings(ids)
	if len(ids) > 5 {
		return fmt.Sprintf("biskit: %d items permanently failed (first: %v)", len(ids), ids[:5])
	}
	return fmt.Sprintf("biskit: %d items permanently failed: %v", len(ids), ids)
}
