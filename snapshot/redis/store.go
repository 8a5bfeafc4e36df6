// Package redis implements snapshot.Store on Redis, for coordinators
// that must survive host loss. Snapshots are stored as plain keys with
// msgpack values; the set of IDs lives in a companion set so List does
// not scan the keyspace.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ostrokach/biskit"
	"github.com/ostrokach/biskit/snapshot"
)

// Compile-time interface check.
var _ snapshot.Store = (*Store)(nil)

const (
	keyPrefix = "biskit:snapshot:"
	indexKey  = "biskit:snapshots"
)

// Option configures the Store.
type Option func(*Store)

// WithTTLSeconds sets an expiry on stored snapshots. Zero keeps them
// forever.
func WithTTLSeconds(n int) Option {
	return func(s *Store) { s.ttlSeconds = n }
}

// Store implements snapshot.Store backed by Redis.
type Store struct {
	client     redis.Cmdable
	ttlSeconds int
}

// New creates a Redis-backed snapshot store. The caller owns the Redis
// client lifecycle.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.Cmdable { return s.client }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Save persists the snapshot and registers its ID in the index set.
func (s *Store) Save(ctx context.Context, snap *snapshot.Snapshot) error {
	data, err := snapshot.Encode(snap)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, keyPrefix+snap.ID, data, 0)
	if s.ttlSeconds > 0 {
		pipe.Expire(ctx, keyPrefix+snap.ID, time.Duration(s.ttlSeconds)*time.Second)
	}
	pipe.SAdd(ctx, indexKey, snap.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("snapshot/redis: save: %w", err)
	}
	return nil
}

// Load retrieves a snapshot by ID.
func (s *Store) Load(ctx context.Context, snapshotID string) (*snapshot.Snapshot, error) {
	data, err := s.client.Get(ctx, keyPrefix+snapshotID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, biskit.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("snapshot/redis: load: %w", err)
	}
	return snapshot.Decode(data)
}

// List returns all stored snapshot IDs, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("snapshot/redis: list: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes a snapshot and its index entry.
func (s *Store) Delete(ctx context.Context, snapshotID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keyPrefix+snapshotID)
	pipe.SRem(ctx, indexKey, snapshotID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("snapshot/redis: delete: %w", err)
	}
	return nil
}
