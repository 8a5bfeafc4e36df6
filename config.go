package biskit

import "time"

// Config holds configuration for the distribution engine.
type Config struct {
	// ChunkSize is how many items are dispatched to a worker in one go.
	ChunkSize int

	// MaxRetriesPerItem is how many times an item may be re-dispatched
	// after its worker died before it is permanently failed. Zero means
	// a single worker death fails the item.
	MaxRetriesPerItem int

	// MaxWorkersPerHost caps how many workers are spawned per host.
	MaxWorkersPerHost int

	// PollInterval is how long the coordinator sleeps when an iteration
	// makes no progress.
	PollInterval time.Duration

	// LivenessTimeout is how long an assigned chunk may go without any
	// frame from its worker before the worker is presumed dead.
	LivenessTimeout time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:         10,
		MaxRetriesPerItem: 2,
		MaxWorkersPerHost: 1,
		PollInterval:      50 * time.Millisecond,
		LivenessTimeout:   2 * time.Minute,
		ShutdownTimeout:   30 * time.Second,
	}
}
