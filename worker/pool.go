package worker

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/ostrokach/biskit/id"
	"github.com/ostrokach/biskit/transport"
	"github.com/ostrokach/biskit/wire"
)

var (
	// ErrUnknownWorker is returned for operations on a worker ID the
	// pool has never seen.
	ErrUnknownWorker = errors.New("worker: unknown worker")

	// ErrNotIdle is returned by Assign when the worker cannot accept
	// a chunk.
	ErrNotIdle = errors.New("worker: worker not idle")

	// ErrThrottled is returned by Assign when the worker's host is at
	// its concurrency or rate limit.
	ErrThrottled = errors.New("worker: host throttled")

	// ErrNoHosts is returned by Start when the pool has no hosts.
	ErrNoHosts = errors.New("worker: no hosts")
)

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithSlotsPerHost sets the default number of workers per host.
func WithSlotsPerHost(n int) PoolOption {
	return func(p *Pool) { p.slotsPerHost = n }
}

// WithLimits sets per-host throttling.
func WithLimits(l *Limits) PoolOption {
	return func(p *Pool) { p.limits = l }
}

// WithEventBuffer sets the shared event channel capacity.
func WithEventBuffer(n int) PoolOption {
	return func(p *Pool) { p.eventBuffer = n }
}

// Pool spawns and tracks the worker fleet. One forwarder goroutine per
// worker moves frames from its transport process onto the shared event
// channel; a worker's death arrives on the same channel, so the
// coordinator drains a single stream.
//
// State-changing methods are safe for concurrent use, but the pool is
// designed for a single coordinator goroutine calling them.
type Pool struct {
	tr           transport.Transport
	hosts        []Host
	slotsPerHost int
	limits       *Limits
	logger       *slog.Logger
	eventBuffer  int

	events   chan Event
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu      sync.Mutex
	records map[string]*Record
	started bool
}

// NewPool creates a pool over the given transport and hosts.
func NewPool(tr transport.Transport, hosts []Host, logger *slog.Logger, opts ...PoolOption) *Pool {
	p := &Pool{
		tr:           tr,
		hosts:        hosts,
		slotsPerHost: 1,
		logger:       logger,
		eventBuffer:  256,
		stopCh:       make(chan struct{}),
		records:      make(map[string]*Record),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.events = make(chan Event, p.eventBuffer)
	return p
}

// Events returns the shared event channel. A Died event is the last
// event emitted for a worker.
func (p *Pool) Events() <-chan Event { return p.events }

// Start spawns every worker slot and sends each worker its init frame.
// Spawn failures are logged and skipped; Start fails only when no
// worker at all could be spawned.
func (p *Pool) Start(ctx context.Context, initPayload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil
	}
	if len(p.hosts) == 0 {
		return ErrNoHosts
	}
	p.started = true

	spawned := 0
	for _, h := range p.hosts {
		slots := h.Slots
		if slots <= 0 {
			slots = p.slotsPerHost
		}
		for range slots {
			workerID := id.NewWorkerID()
			proc, err := p.tr.Spawn(ctx, h.Name, workerID)
			if err != nil {
				p.logger.Warn("worker spawn failed",
					slog.String("host", h.Name),
					slog.String("error", err.Error()),
				)
				continue
			}

			rec := &Record{
				ID:       workerID,
				Host:     h.Name,
				Niceness: h.Niceness,
				State:    StateInitializing,
				proc:     proc,
			}
			p.records[workerID.String()] = rec

			if err := proc.Send(wire.NewInitFrame(workerID, initPayload)); err != nil {
				p.logger.Warn("init send failed",
					slog.String("worker_id", workerID.String()),
					slog.String("error", err.Error()),
				)
			}

			p.wg.Add(1)
			go p.forward(rec)
			spawned++
		}
	}

	p.logger.Info("worker pool started",
		slog.Int("hosts", len(p.hosts)),
		slog.Int("workers", spawned),
	)
	if spawned == 0 {
		return ErrNoHosts
	}
	return nil
}

// forward pumps one worker's frames onto the shared event channel and
// emits the death event when the stream closes.
func (p *Pool) forward(rec *Record) {
	defer p.wg.Done()

	for f := range rec.proc.Frames() {
		select {
		case p.events <- Event{WorkerID: rec.ID, Frame: f}:
		case <-p.stopCh:
			return
		}
	}
	select {
	case p.events <- Event{WorkerID: rec.ID, Died: true}:
	case <-p.stopCh:
	}
}

// Ready marks an initializing worker idle.
func (p *Pool) Ready(workerID id.WorkerID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.records[workerID.String()]
	if !ok {
		return ErrUnknownWorker
	}
	if rec.State == StateInitializing {
		rec.State = StateIdle
	}
	return nil
}

// Idle returns the idle workers ordered by ascending niceness; ties
// break by host name and worker ID so assignment order is stable.
func (p *Pool) Idle() []*Record {
	p.mu.Lock()
	defer p.mu.Unlock()

	var idle []*Record
	for _, rec := range p.records {
		if rec.State == StateIdle {
			idle = append(idle, rec)
		}
	}
	sort.Slice(idle, func(i, j int) bool {
		if idle[i].Niceness != idle[j].Niceness {
			return idle[i].Niceness < idle[j].Niceness
		}
		if idle[i].Host != idle[j].Host {
			return idle[i].Host < idle[j].Host
		}
		return idle[i].ID.String() < idle[j].ID.String()
	})
	return idle
}

// Assign marks an idle worker busy with chunkID and sends it the chunk
// frame. A send failure is not unwound here: the transport will close
// the worker's frame stream and the death event reclaims the chunk.
func (p *Pool) Assign(workerID id.WorkerID, chunkID id.ChunkID, f *wire.Frame) error {
	p.mu.Lock()
	rec, ok := p.records[workerID.String()]
	if !ok {
		p.mu.Unlock()
		return ErrUnknownWorker
	}
	if rec.State != StateIdle {
		p.mu.Unlock()
		return ErrNotIdle
	}
	if p.limits != nil && !p.limits.Acquire(rec.Host) {
		p.mu.Unlock()
		return ErrThrottled
	}
	rec.State = StateBusy
	rec.ChunkID = chunkID
	proc := rec.proc
	p.mu.Unlock()

	return proc.Send(f)
}

// Finish marks a busy worker idle again and releases its host slot.
func (p *Pool) Finish(workerID id.WorkerID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.records[workerID.String()]
	if !ok {
		return ErrUnknownWorker
	}
	if rec.State != StateBusy {
		return nil
	}
	rec.State = StateIdle
	rec.ChunkID = id.ChunkID{}
	if p.limits != nil {
		p.limits.Release(rec.Host)
	}
	return nil
}

// MarkDead transitions a worker to Dead, closes its process, and
// releases its host slot. It returns the record so the caller can
// reclaim the worker's chunk, and false if the worker is unknown or
// already dead.
func (p *Pool) MarkDead(workerID id.WorkerID, reason string) (*Record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.records[workerID.String()]
	if !ok || rec.State == StateDead {
		return nil, false
	}
	if rec.State == StateBusy && p.limits != nil {
		p.limits.Release(rec.Host)
	}
	rec.State = StateDead
	rec.proc.Close()

	p.logger.Warn("worker dead",
		slog.String("worker_id", workerID.String()),
		slog.String("host", rec.Host),
		slog.String("reason", reason),
	)
	return rec, true
}

// Send delivers a frame to a live worker.
func (p *Pool) Send(workerID id.WorkerID, f *wire.Frame) error {
	p.mu.Lock()
	rec, ok := p.records[workerID.String()]
	if !ok || rec.State == StateDead {
		p.mu.Unlock()
		return ErrUnknownWorker
	}
	proc := rec.proc
	p.mu.Unlock()
	return proc.Send(f)
}

// Get returns the record for a worker ID.
func (p *Pool) Get(workerID id.WorkerID) (*Record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.records[workerID.String()]
	return rec, ok
}

// Alive returns the number of workers not yet dead.
func (p *Pool) Alive() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, rec := range p.records {
		if rec.State != StateDead {
			n++
		}
	}
	return n
}

// Busy returns the workers currently holding a chunk.
func (p *Pool) Busy() []*Record {
	p.mu.Lock()
	defer p.mu.Unlock()

	var busy []*Record
	for _, rec := range p.records {
		if rec.State == StateBusy {
			busy = append(busy, rec)
		}
	}
	return busy
}

// Stop asks every live worker to shut down and waits for the frame
// forwarders to drain. If ctx expires first, remaining processes are
// closed hard.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	var procs []transport.Process
	for _, rec := range p.records {
		if rec.State == StateDead {
			continue
		}
		// Best-effort shutdown request before close.
		_ = rec.proc.Send(wire.NewShutdownFrame(rec.ID))
		procs = append(procs, rec.proc)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, closing processes")
		p.stopOnce.Do(func() { close(p.stopCh) })
		for _, proc := range procs {
			proc.Close()
		}
		p.wg.Wait()
	}
	return nil
}
