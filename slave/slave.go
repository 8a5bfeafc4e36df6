// Package slave implements the worker-side runtime. The same Runner
// backs both the in-process transport and the WebSocket worker daemon:
// it receives frames from the coordinator, runs the user's work
// function on each chunk, and produces the frames to send back.
package slave

import (
	"context"
	"log/slog"
	"time"

	"github.com/ostrokach/biskit/middleware"
	"github.com/ostrokach/biskit/wire"
)

// WorkFunc computes results for a chunk of items. init carries the
// run-wide initialization parameters delivered during the handshake;
// items maps item ID to payload. The returned map holds one result per
// item ID. Returning an error fails the whole chunk; the coordinator
// re-queues its items against their retry budgets.
type WorkFunc func(ctx context.Context, init []byte, items map[string][]byte) (map[string][]byte, error)

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithMiddleware wraps chunk execution with the given middleware, in
// the order listed (first is outermost).
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(r *Runner) { r.mws = mws }
}

// Runner drives a single worker. It is not safe for concurrent Handle
// calls; each connection owns one Runner.
type Runner struct {
	fn     WorkFunc
	logger *slog.Logger
	mws    []middleware.Middleware

	init  []byte
	ready bool
}

// NewRunner creates a worker runtime around fn.
func NewRunner(fn WorkFunc, opts ...Option) *Runner {
	r := &Runner{
		fn:     fn,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle processes one inbound frame and returns the frames to send
// back, plus done=true when the coordinator has asked the worker to
// exit.
func (r *Runner) Handle(ctx context.Context, f *wire.Frame) (out []*wire.Frame, done bool) {
	switch f.Type {
	case wire.FrameInit:
		r.init = f.Init
		r.ready = true
		r.logger.Debug("worker initialized", slog.String("worker_id", f.WorkerID))
		return []*wire.Frame{wire.NewReadyFrameRaw(f.WorkerID)}, false

	case wire.FrameChunk:
		return []*wire.Frame{r.runChunk(ctx, f)}, false

	case wire.FramePing:
		return []*wire.Frame{wire.NewPongFrameRaw(f.WorkerID)}, false

	case wire.FrameShutdown:
		r.logger.Debug("worker shutting down", slog.String("worker_id", f.WorkerID))
		return nil, true

	default:
		r.logger.Warn("unexpected frame", slog.String("type", string(f.Type)))
		return nil, false
	}
}

func (r *Runner) runChunk(ctx context.Context, f *wire.Frame) *wire.Frame {
	started := time.Now()

	var results map[string][]byte
	run := func(ctx context.Context) error {
		var err error
		results, err = r.fn(ctx, r.init, f.Items)
		return err
	}

	var err error
	if len(r.mws) > 0 {
		err = middleware.Chain(r.mws...)(ctx, f, run)
	} else {
		err = run(ctx)
	}

	if err != nil {
		r.logger.Warn("chunk failed",
			slog.String("chunk_id", f.ChunkID),
			slog.String("error", err.Error()),
		)
		return wire.NewErrorFrameRaw(f.WorkerID, f.ChunkID, err.Error())
	}

	r.logger.Debug("chunk computed",
		slog.String("chunk_id", f.ChunkID),
		slog.Int("items", len(f.Items)),
		slog.Duration("elapsed", time.Since(started)),
	)
	return wire.NewResultFrameRaw(f.WorkerID, f.ChunkID, results)
}
