// Package file implements snapshot.Store on the local filesystem. Each
// snapshot is one msgpack-encoded file under the store directory,
// written atomically via a temp file and rename, so a run can be
// resumed after a coordinator crash.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ostrokach/biskit"
	"github.com/ostrokach/biskit/snapshot"
)

// Compile-time interface check.
var _ snapshot.Store = (*Store)(nil)

const ext = ".snap"

// Store persists snapshots as files in a directory.
type Store struct {
	dir string
}

// New creates a file store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot/file: create dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(snapshotID string) string {
	return filepath.Join(s.dir, snapshotID+ext)
}

// Save writes the snapshot atomically.
func (s *Store) Save(_ context.Context, snap *snapshot.Snapshot) error {
	data, err := snapshot.Encode(snap)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, snap.ID+".tmp-*")
	if err != nil {
		return fmt.Errorf("snapshot/file: create temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("snapshot/file: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("snapshot/file: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(snap.ID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("snapshot/file: rename: %w", err)
	}
	return nil
}

// Load reads a snapshot by ID.
func (s *Store) Load(_ context.Context, snapshotID string) (*snapshot.Snapshot, error) {
	data, err := os.ReadFile(s.path(snapshotID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, biskit.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("snapshot/file: read: %w", err)
	}
	return snapshot.Decode(data)
}

// List returns all stored snapshot IDs, sorted.
func (s *Store) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("snapshot/file: read dir: %w", err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ext))
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes a snapshot file.
func (s *Store) Delete(_ context.Context, snapshotID string) error {
	if err := os.Remove(s.path(snapshotID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("snapshot/file: remove: %w", err)
	}
	return nil
}
