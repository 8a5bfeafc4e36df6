// Package memory implements snapshot.Store in memory. Intended for
// unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ostrokach/biskit"
	"github.com/ostrokach/biskit/snapshot"
)

// Compile-time interface check.
var _ snapshot.Store = (*Store)(nil)

// Store is a fully in-memory snapshot store. Safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	snaps map[string][]byte
}

// New returns a new empty Store.
func New() *Store {
	return &Store{snaps: make(map[string][]byte)}
}

// Save persists an encoded copy of the snapshot.
func (m *Store) Save(_ context.Context, s *snapshot.Snapshot) error {
	data, err := snapshot.Encode(s)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[s.ID] = data
	return nil
}

// Load retrieves a snapshot by ID.
func (m *Store) Load(_ context.Context, snapshotID string) (*snapshot.Snapshot, error) {
	m.mu.RLock()
	data, ok := m.snaps[snapshotID]
	m.mu.RUnlock()
	if !ok {
		return nil, biskit.ErrSnapshotNotFound
	}
	return snapshot.Decode(data)
}

// List returns all stored snapshot IDs, sorted.
func (m *Store) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.snaps))
	for snapID := range m.snaps {
		ids = append(ids, snapID)
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes a snapshot.
func (m *Store) Delete(_ context.Context, snapshotID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, snapshotID)
	return nil
}
