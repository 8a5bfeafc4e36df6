// Package engine wires the subsystems into the coordinator: it owns the
// work registry, the chunk scheduler, and the worker pool, and runs the
// single loop that drains worker events, dispatches chunks, and
// reclaims the chunks of dead workers.
//
// The loop goroutine is the only writer to the registry and scheduler.
// Progress, Snapshot, and Restore synchronize with it through one
// mutex, taken per event rather than for the life of the run. Lifecycle
// hooks are always emitted outside that mutex, so extensions may call
// back into the engine.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ostrokach/biskit"
	"github.com/ostrokach/biskit/backoff"
	"github.com/ostrokach/biskit/hook"
	"github.com/ostrokach/biskit/id"
	"github.com/ostrokach/biskit/sched"
	"github.com/ostrokach/biskit/snapshot"
	"github.com/ostrokach/biskit/transport"
	"github.com/ostrokach/biskit/wire"
	"github.com/ostrokach/biskit/work"
	"github.com/ostrokach/biskit/worker"
)

// RunState is the coordinator's lifecycle state.
type RunState string

const (
	// StateNew means Start has not been called.
	StateNew RunState = "new"
	// StateRunning means the coordinator loop is live.
	StateRunning RunState = "running"
	// StateDone means every item finished successfully.
	StateDone RunState = "done"
	// StateFailed means the run completed but some items exhausted
	// their retry budgets.
	StateFailed RunState = "failed"
	// StateDegraded means every worker died with work remaining.
	StateDegraded RunState = "degraded"
	// StateShutdown means the run was stopped before completion.
	StateShutdown RunState = "shutdown"
)

// Progress is a point-in-time view of the run.
type Progress struct {
	Pending  int `json:"pending"`
	Assigned int `json:"assigned"`
	Done     int `json:"done"`
	Failed   int `json:"failed"`
	Total    int `json:"total"`

	WorkersAlive int      `json:"workers_alive"`
	State        RunState `json:"state"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the engine configuration.
func WithConfig(cfg biskit.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithExtension registers a lifecycle extension.
func WithExtension(ext hook.Extension) Option {
	return func(e *Engine) { e.exts = append(e.exts, ext) }
}

// WithInitParams sets the opaque initialization payload delivered to
// every worker before its first chunk.
func WithInitParams(params []byte) Option {
	return func(e *Engine) { e.initParams = params }
}

// WithSnapshotStore sets the store Snapshot persists checkpoints to.
func WithSnapshotStore(store snapshot.Store) Option {
	return func(e *Engine) { e.snapStore = store }
}

// WithLimits sets per-host dispatch throttling.
func WithLimits(l *worker.Limits) Option {
	return func(e *Engine) { e.limits = l }
}

// WithBackoff sets the retry backoff applied to reclaimed items.
// If not set, backoff.DefaultStrategy() (exponential with jitter) is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(e *Engine) { e.bo = b }
}

// Engine is the coordinator for one run over a fixed item mapping.
type Engine struct {
	cfg        biskit.Config
	logger     *slog.Logger
	hooks      *hook.Registry
	exts       []hook.Extension
	initParams []byte
	snapStore  snapshot.Store
	limits     *worker.Limits
	bo         backoff.Strategy

	mu        sync.Mutex
	state     RunState
	registry  *work.Registry
	scheduler *sched.Scheduler
	pool      *worker.Pool
	results   work.Results
	runErr    error

	// chunkStarted feeds the elapsed argument of the chunk-completed
	// hook. Keyed by chunk ID string.
	chunkStarted map[string]time.Time

	cancel       context.CancelFunc
	done         chan struct{}
	shuttingDown bool
	lastPing     time.Time
}

// New creates a coordinator over items, reaching workers on hosts
// through tr. The items map is not retained; payloads are copied into
// the registry.
func New(items map[string][]byte, tr transport.Transport, hosts []worker.Host, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:          biskit.DefaultConfig(),
		logger:       slog.Default(),
		bo:           backoff.DefaultStrategy(),
		state:        StateNew,
		results:      make(work.Results),
		chunkStarted: make(map[string]time.Time),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	if tr == nil {
		return nil, biskit.ErrNoTransport
	}
	if len(hosts) == 0 {
		return nil, biskit.ErrNoHosts
	}

	registry, err := work.NewRegistry(items, e.cfg.MaxRetriesPerItem)
	if err != nil {
		return nil, err
	}
	scheduler, err := sched.New(registry, e.cfg.ChunkSize,
		sched.WithLiveness(e.cfg.LivenessTimeout),
		sched.WithBackoff(e.bo),
	)
	if err != nil {
		return nil, err
	}

	e.registry = registry
	e.scheduler = scheduler
	e.pool = worker.NewPool(tr, hosts, e.logger,
		worker.WithSlotsPerHost(e.cfg.MaxWorkersPerHost),
		worker.WithLimits(e.limits),
	)

	e.hooks = hook.NewRegistry(e.logger)
	for _, ext := range e.exts {
		e.hooks.Register(ext)
	}
	return e, nil
}

// Start launches the coordinator loop and returns immediately. The run
// continues until every item is resolved, every worker dies, ctx is
// canceled, or Shutdown is called.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateNew {
		return biskit.ErrAlreadyStarted
	}
	e.state = StateRunning

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	pending, _, done, failed := e.registry.Counts()
	e.logger.Info("run starting",
		slog.Int("items", e.registry.Len()),
		slog.Int("pending", pending),
		slog.Int("done", done),
		slog.Int("failed", failed),
		slog.Int("chunk_size", e.scheduler.ChunkSize()),
	)

	go e.run(runCtx)
	return nil
}

// CalculateResult runs the engine to completion and returns the result
// of every successfully computed item. On partial failure the returned
// error carries what was completed.
func (e *Engine) CalculateResult(ctx context.Context) (work.Results, error) {
	if err := e.Start(ctx); err != nil {
		return nil, err
	}
	<-e.done
	return e.Result()
}

// Done is closed when the run has finished, for whatever reason.
func (e *Engine) Done() <-chan struct{} { return e.done }

// Result returns the collected results once the run has finished.
// Calling it earlier returns ErrNotStarted.
func (e *Engine) Result() (work.Results, error) {
	select {
	case <-e.done:
	default:
		return nil, biskit.ErrNotStarted
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.results.Clone(), e.runErr
}

// Progress returns a point-in-time view of the run. Safe to call from
// any goroutine at any time.
func (e *Engine) Progress() Progress {
	e.mu.Lock()
	defer e.mu.Unlock()

	pending, assigned, done, failed := e.registry.Counts()
	return Progress{
		Pending:      pending,
		Assigned:     assigned,
		Done:         done,
		Failed:       failed,
		Total:        e.registry.Len(),
		WorkersAlive: e.pool.Alive(),
		State:        e.state,
	}
}

// Shutdown stops the run. Workers receive shutdown frames and the
// coordinator loop exits; in-flight chunks are abandoned. Blocks until
// the loop has stopped or ctx expires.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateNew {
		e.mu.Unlock()
		return biskit.ErrNotStarted
	}
	e.shuttingDown = true
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ──────────────────────────────────────────────────
// Coordinator loop
// ──────────────────────────────────────────────────

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	if err := e.pool.Start(ctx, e.initParams); err != nil {
		e.finish(ctx, StateDegraded, fmt.Errorf("engine: pool start: %w", err))
		return
	}

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.mu.Lock()
			shutdown := e.shuttingDown
			e.mu.Unlock()
			if shutdown {
				e.finish(ctx, StateShutdown, biskit.ErrShutdown)
			} else {
				e.finish(ctx, StateShutdown, ctx.Err())
			}
			return

		case ev := <-e.pool.Events():
			e.handleEvent(ctx, ev)

		case <-ticker.C:
			e.tick(ctx)
		}

		if e.checkFinished(ctx) {
			return
		}
	}
}

func (e *Engine) handleEvent(ctx context.Context, ev worker.Event) {
	if ev.Died {
		e.onWorkerDead(ctx, ev.WorkerID, "disconnect")
		return
	}

	switch ev.Frame.Type {
	case wire.FrameReady:
		e.onReady(ctx, ev.WorkerID)
	case wire.FrameResult:
		e.onResult(ctx, ev.WorkerID, ev.Frame)
	case wire.FrameErr:
		e.onChunkError(ctx, ev.WorkerID, ev.Frame)
	case wire.FramePong:
		e.onPong(ev.WorkerID)
	default:
		e.logger.Warn("unexpected frame from worker",
			slog.String("worker_id", ev.WorkerID.String()),
			slog.String("type", string(ev.Frame.Type)),
		)
	}
}

func (e *Engine) onReady(ctx context.Context, workerID id.WorkerID) {
	if err := e.pool.Ready(workerID); err != nil {
		e.logger.Warn("ready from unknown worker", slog.String("worker_id", workerID.String()))
		return
	}
	if rec, ok := e.pool.Get(workerID); ok {
		e.hooks.EmitWorkerReady(ctx, workerID, rec.Host)
	}
	e.dispatch(ctx, time.Now())
}

func (e *Engine) onResult(ctx context.Context, workerID id.WorkerID, f *wire.Frame) {
	chunkID, err := id.ParseChunkID(f.ChunkID)
	if err != nil {
		e.logger.Warn("result with invalid chunk id", slog.String("chunk_id", f.ChunkID))
		return
	}

	now := time.Now()

	e.mu.Lock()
	e.scheduler.Touch(chunkID, now)

	var completed *sched.Chunk
	for itemID, payload := range f.Results {
		c, _ := e.scheduler.Get(chunkID)
		accepted, complete, deliverErr := e.scheduler.Deliver(chunkID, itemID)
		if deliverErr != nil {
			e.logger.Warn("result delivery rejected",
				slog.String("chunk_id", f.ChunkID),
				slog.String("item_id", itemID),
				slog.String("error", deliverErr.Error()),
			)
			continue
		}
		if !accepted {
			// Late or duplicate result; the item may be re-assigned or
			// permanently failed, so it must not enter the results.
			continue
		}
		e.results[itemID] = payload
		if complete {
			completed = c
		}
	}

	var elapsed time.Duration
	if completed != nil {
		elapsed = now.Sub(completed.AssignedAt)
		if started, ok := e.chunkStarted[completed.ID.String()]; ok {
			elapsed = now.Sub(started)
			delete(e.chunkStarted, completed.ID.String())
		}
	}
	e.mu.Unlock()

	if completed != nil {
		e.hooks.EmitChunkCompleted(ctx, completed, elapsed)
		if err := e.pool.Finish(workerID); err != nil {
			e.logger.Warn("finish failed", slog.String("worker_id", workerID.String()))
		}
		e.dispatch(ctx, now)
	}
}

// onChunkError handles a worker reporting that it could not compute its
// chunk. The worker survives; its items go back to the queue with one
// attempt charged.
func (e *Engine) onChunkError(ctx context.Context, workerID id.WorkerID, f *wire.Frame) {
	chunkID, err := id.ParseChunkID(f.ChunkID)
	if err != nil {
		e.logger.Warn("error frame with invalid chunk id", slog.String("chunk_id", f.ChunkID))
		return
	}

	reason := "chunk failed"
	if f.Error != nil && f.Error.Message != "" {
		reason = f.Error.Message
	}
	e.logger.Warn("chunk failed on worker",
		slog.String("worker_id", workerID.String()),
		slog.String("chunk_id", f.ChunkID),
		slog.String("reason", reason),
	)

	now := time.Now()

	e.mu.Lock()
	var permanent []permanentFailure
	if c, ok := e.scheduler.Get(chunkID); ok {
		permanent = e.reclaimLocked(c, reason, now)
	}
	e.mu.Unlock()

	e.emitFailures(ctx, permanent)
	if err := e.pool.Finish(workerID); err == nil {
		e.dispatch(ctx, now)
	}
}

func (e *Engine) onPong(workerID id.WorkerID) {
	rec, ok := e.pool.Get(workerID)
	if !ok || rec.State != worker.StateBusy {
		return
	}
	e.mu.Lock()
	e.scheduler.Touch(rec.ChunkID, time.Now())
	e.mu.Unlock()
}

func (e *Engine) onWorkerDead(ctx context.Context, workerID id.WorkerID, reason string) {
	rec, ok := e.pool.MarkDead(workerID, reason)
	if !ok {
		return
	}
	e.hooks.EmitWorkerDead(ctx, workerID, rec.Host, reason)

	now := time.Now()

	e.mu.Lock()
	var permanent []permanentFailure
	if !rec.ChunkID.IsNil() {
		if c, chunkOK := e.scheduler.Get(rec.ChunkID); chunkOK {
			permanent = e.reclaimLocked(c, reason, now)
		}
	}
	e.mu.Unlock()

	e.emitFailures(ctx, permanent)
	e.dispatch(ctx, now)
}

type permanentFailure struct {
	itemID   string
	attempts int
}

// reclaimLocked returns a chunk's undelivered items to the queue and
// reports the items that ran out of retries. Caller holds mu.
func (e *Engine) reclaimLocked(c *sched.Chunk, reason string, now time.Time) []permanentFailure {
	delete(e.chunkStarted, c.ID.String())

	ids, err := e.scheduler.Reclaim(c, reason, now)
	if err != nil {
		e.logger.Error("chunk reclaim failed",
			slog.String("chunk_id", c.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	permanent := make([]permanentFailure, 0, len(ids))
	for _, itemID := range ids {
		attempts := 0
		if it, ok := e.registry.Get(itemID); ok {
			attempts = it.Attempts
		}
		permanent = append(permanent, permanentFailure{itemID: itemID, attempts: attempts})
	}
	return permanent
}

func (e *Engine) emitFailures(ctx context.Context, permanent []permanentFailure) {
	for _, p := range permanent {
		e.hooks.EmitItemFailed(ctx, p.itemID, p.attempts)
	}
}

// tick expires overdue chunks, sends liveness pings, and keeps idle
// workers fed.
func (e *Engine) tick(ctx context.Context) {
	now := time.Now()

	e.mu.Lock()
	expired := e.scheduler.Expired(now)
	e.mu.Unlock()

	// Treat a missed liveness deadline like a death notification; the
	// transport close also produces a Died event later, which MarkDead
	// makes a no-op.
	for _, c := range expired {
		e.onWorkerDead(ctx, c.WorkerID, "liveness timeout")
	}

	pingEvery := e.cfg.LivenessTimeout / 3
	if pingEvery > 0 && now.Sub(e.lastPing) >= pingEvery {
		e.lastPing = now
		for _, rec := range e.pool.Busy() {
			// A failed ping surfaces as a death event.
			_ = e.pool.Send(rec.ID, wire.NewPingFrame(rec.ID))
		}
	}

	e.dispatch(ctx, now)
}

// dispatch feeds idle workers in niceness order until no eligible work
// remains or every idle worker is throttled.
func (e *Engine) dispatch(ctx context.Context, now time.Time) {
	var assigned []*sched.Chunk

	e.mu.Lock()
	for _, rec := range e.pool.Idle() {
		c, err := e.scheduler.NextChunk(rec.ID, now)
		if err != nil {
			e.logger.Error("chunk build failed", slog.String("error", err.Error()))
			break
		}
		if c == nil {
			break
		}

		frame := wire.NewChunkFrame(rec.ID, c.ID, e.registry.Payloads(c.ItemIDs))
		if err := e.pool.Assign(rec.ID, c.ID, frame); err != nil {
			// Withdraw the chunk; the items go back without penalty.
			if cancelErr := e.scheduler.Cancel(c.ID); cancelErr != nil {
				e.logger.Error("chunk cancel failed", slog.String("error", cancelErr.Error()))
			}
			if err != worker.ErrThrottled {
				e.logger.Warn("chunk assign failed",
					slog.String("worker_id", rec.ID.String()),
					slog.String("error", err.Error()),
				)
			}
			continue
		}

		e.chunkStarted[c.ID.String()] = now
		assigned = append(assigned, c)
		e.logger.Debug("chunk dispatched",
			slog.String("chunk_id", c.ID.String()),
			slog.String("worker_id", rec.ID.String()),
			slog.String("host", rec.Host),
			slog.Int("items", len(c.ItemIDs)),
		)
	}
	e.mu.Unlock()

	for _, c := range assigned {
		e.hooks.EmitChunkAssigned(ctx, c)
	}
}

// checkFinished resolves the run's outcome when no further progress is
// possible: all items terminal, or no worker left to make progress.
func (e *Engine) checkFinished(ctx context.Context) bool {
	e.mu.Lock()
	complete := e.registry.IsComplete()
	pending, assigned, _, _ := e.registry.Counts()
	failedIDs := e.registry.IDsByStatus(work.StatusFailed)
	partial := e.results.Clone()
	e.mu.Unlock()

	if complete {
		if len(failedIDs) > 0 {
			e.finish(ctx, StateFailed, &biskit.PermanentFailureError{
				FailedIDs: failedIDs,
				Partial:   partial,
			})
		} else {
			e.finish(ctx, StateDone, nil)
		}
		return true
	}

	if e.pool.Alive() == 0 {
		e.finish(ctx, StateDegraded, &biskit.DegradedPoolError{
			Pending: pending + assigned,
			Partial: partial,
		})
		return true
	}
	return false
}

// finish records the outcome, notifies extensions, and stops the pool.
func (e *Engine) finish(ctx context.Context, state RunState, runErr error) {
	e.mu.Lock()
	e.state = state
	e.runErr = runErr
	results := e.results.Clone()
	failedIDs := e.registry.IDsByStatus(work.StatusFailed)
	pending, assigned, done, failed := e.registry.Counts()
	e.mu.Unlock()

	switch state {
	case StateDone, StateFailed:
		e.hooks.EmitAllDone(ctx, results, failedIDs)
	case StateDegraded, StateShutdown:
		// Not done; extensions see only the shutdown notification.
	}
	e.hooks.EmitShutdown(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), e.cfg.ShutdownTimeout)
	defer cancel()
	_ = e.pool.Stop(stopCtx)

	e.logger.Info("run finished",
		slog.String("state", string(state)),
		slog.Int("done", done),
		slog.Int("failed", failed),
		slog.Int("pending", pending),
		slog.Int("assigned", assigned),
	)
}
