package redis_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ostrokach/biskit"
	"github.com/ostrokach/biskit/snapshot"
	redisstore "github.com/ostrokach/biskit/snapshot/redis"
)

// fakeRedis implements just enough of redis.Cmdable for the store:
// plain keys, sets, and recorded expirations. Calls to anything else
// panic through the embedded nil interface.
type fakeRedis struct {
	redis.Cmdable

	mu     sync.Mutex
	keys   map[string][]byte
	sets   map[string]map[string]struct{}
	expiry map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		keys:   make(map[string][]byte),
		sets:   make(map[string]map[string]struct{}),
		expiry: make(map[string]time.Duration),
	}
}

func (f *fakeRedis) Ping(_ context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.keys[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(data), nil)
}

func (f *fakeRedis) SMembers(_ context.Context, key string) *redis.StringSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var members []string
	for m := range f.sets[key] {
		members = append(members, m)
	}
	return redis.NewStringSliceResult(members, nil)
}

func (f *fakeRedis) TxPipeline() redis.Pipeliner {
	return &fakePipeline{r: f}
}

// fakePipeline queues writes and applies them together on Exec, the way
// a transactional pipeline would.
type fakePipeline struct {
	redis.Pipeliner

	r   *fakeRedis
	ops []func()
}

func (p *fakePipeline) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	data := []byte(fmt.Sprint(value))
	if b, ok := value.([]byte); ok {
		data = b
	}
	p.ops = append(p.ops, func() { p.r.keys[key] = data })
	return redis.NewStatusResult("OK", nil)
}

func (p *fakePipeline) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	p.ops = append(p.ops, func() { p.r.expiry[key] = ttl })
	return redis.NewBoolResult(true, nil)
}

func (p *fakePipeline) SAdd(_ context.Context, key string, members ...interface{}) *redis.IntCmd {
	p.ops = append(p.ops, func() {
		set := p.r.sets[key]
		if set == nil {
			set = make(map[string]struct{})
			p.r.sets[key] = set
		}
		for _, m := range members {
			set[fmt.Sprint(m)] = struct{}{}
		}
	})
	return redis.NewIntResult(int64(len(members)), nil)
}

func (p *fakePipeline) Del(_ context.Context, keys ...string) *redis.IntCmd {
	p.ops = append(p.ops, func() {
		for _, k := range keys {
			delete(p.r.keys, k)
			delete(p.r.expiry, k)
		}
	})
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (p *fakePipeline) SRem(_ context.Context, key string, members ...interface{}) *redis.IntCmd {
	p.ops = append(p.ops, func() {
		for _, m := range members {
			delete(p.r.sets[key], fmt.Sprint(m))
		}
	})
	return redis.NewIntResult(int64(len(members)), nil)
}

func (p *fakePipeline) Exec(_ context.Context) ([]redis.Cmder, error) {
	p.r.mu.Lock()
	defer p.r.mu.Unlock()
	for _, op := range p.ops {
		op()
	}
	p.ops = nil
	return nil, nil
}

func sample() *snapshot.Snapshot {
	s := snapshot.New()
	s.TotalItems = 4
	s.Pending = []string{"c"}
	s.Assigned = []string{"d"}
	s.Done = []string{"a", "b"}
	s.Results = map[string][]byte{"a": []byte("ra"), "b": []byte("rb")}
	return s
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	st := redisstore.New(newFakeRedis())
	ctx := context.Background()
	s := sample()

	if err := st.Save(ctx, s); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := st.Load(ctx, s.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.TotalItems != 4 {
		t.Errorf("total = %d, want 4", got.TotalItems)
	}
	if len(got.Done) != 2 || got.Done[0] != "a" {
		t.Errorf("done = %v", got.Done)
	}
	if string(got.Results["b"]) != "rb" {
		t.Errorf("results[b] = %q, want rb", got.Results["b"])
	}
}

func TestStore_LoadMissing(t *testing.T) {
	st := redisstore.New(newFakeRedis())
	if _, err := st.Load(context.Background(), "snap_nope"); err != biskit.ErrSnapshotNotFound {
		t.Fatalf("err = %v, want ErrSnapshotNotFound", err)
	}
}

func TestStore_IndexBookkeeping(t *testing.T) {
	st := redisstore.New(newFakeRedis())
	ctx := context.Background()

	s1, s2 := sample(), sample()
	if err := st.Save(ctx, s1); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := st.Save(ctx, s2); err != nil {
		t.Fatalf("save: %v", err)
	}

	want := []string{s1.ID, s2.ID}
	sort.Strings(want)
	ids, err := st.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 2 || ids[0] != want[0] || ids[1] != want[1] {
		t.Fatalf("list = %v, want %v", ids, want)
	}

	if err := st.Delete(ctx, s1.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := st.Load(ctx, s1.ID); err != biskit.ErrSnapshotNotFound {
		t.Fatalf("load deleted = %v, want ErrSnapshotNotFound", err)
	}
	ids, err = st.List(ctx)
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(ids) != 1 || ids[0] != s2.ID {
		t.Fatalf("list after delete = %v, want [%s]", ids, s2.ID)
	}

	// Deleting a missing snapshot is not an error.
	if err := st.Delete(ctx, s1.ID); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestStore_TTL(t *testing.T) {
	f := newFakeRedis()
	st := redisstore.New(f, redisstore.WithTTLSeconds(90))
	ctx := context.Background()
	s := sample()

	if err := st.Save(ctx, s); err != nil {
		t.Fatalf("save: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.keys) != 1 {
		t.Fatalf("stored %d keys, want 1", len(f.keys))
	}
	for key := range f.keys {
		if ttl := f.expiry[key]; ttl != 90*time.Second {
			t.Fatalf("ttl for %s = %v, want 90s", key, ttl)
		}
	}
}

func TestStore_NoTTLByDefault(t *testing.T) {
	f := newFakeRedis()
	st := redisstore.New(f)

	if err := st.Save(context.Background(), sample()); err != nil {
		t.Fatalf("save: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.expiry) != 0 {
		t.Fatalf("expiry = %v, want none", f.expiry)
	}
}
