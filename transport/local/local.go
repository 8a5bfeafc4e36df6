// Package local provides an in-process transport. Each spawned worker
// is a goroutine running a slave.Runner, which makes it the natural
// backend for single-machine runs and for tests: KillWorker drops a
// worker mid-chunk exactly the way a remote crash would look to the
// coordinator.
package local

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ostrokach/biskit/id"
	"github.com/ostrokach/biskit/slave"
	"github.com/ostrokach/biskit/transport"
	"github.com/ostrokach/biskit/wire"
)

const frameBuffer = 16

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the transport's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) { t.logger = logger }
}

// WithMiddleware wraps every spawned worker's chunk execution.
func WithMiddleware(opts ...slave.Option) Option {
	return func(t *Transport) { t.runnerOpts = opts }
}

// Transport spawns goroutine-backed workers that run fn.
type Transport struct {
	fn         slave.WorkFunc
	logger     *slog.Logger
	runnerOpts []slave.Option

	mu    sync.Mutex
	procs map[string]*process // workerID → process
}

// New creates a local transport around the given work function.
func New(fn slave.WorkFunc, opts ...Option) *Transport {
	t := &Transport{
		fn:     fn,
		logger: slog.Default(),
		procs:  make(map[string]*process),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Spawn starts a worker goroutine. The host is recorded for logging
// only; every local worker runs in this process.
func (t *Transport) Spawn(ctx context.Context, host string, workerID id.WorkerID) (transport.Process, error) {
	runner := slave.NewRunner(t.fn, append([]slave.Option{slave.WithLogger(t.logger)}, t.runnerOpts...)...)

	p := &process{
		in:   make(chan *wire.Frame, frameBuffer),
		out:  make(chan *wire.Frame, frameBuffer),
		stop: make(chan struct{}),
		dead: make(chan struct{}),
	}

	go p.loop(ctx, runner)

	t.mu.Lock()
	t.procs[workerID.String()] = p
	t.mu.Unlock()

	t.logger.Debug("local worker spawned",
		slog.String("worker_id", workerID.String()),
		slog.String("host", host),
	)
	return p, nil
}

// KillWorker abruptly terminates a worker without letting it flush
// results; the coordinator observes a closed frame channel. Returns
// false if the worker is unknown.
func (t *Transport) KillWorker(workerID id.WorkerID) bool {
	t.mu.Lock()
	p, ok := t.procs[workerID.String()]
	delete(t.procs, workerID.String())
	t.mu.Unlock()
	if !ok {
		return false
	}
	p.kill()
	return true
}

// process is a goroutine-backed worker endpoint.
type process struct {
	in   chan *wire.Frame
	out  chan *wire.Frame
	stop chan struct{}
	// dead is closed when the loop goroutine has exited, so Send
	// fails fast instead of blocking on a reader that is gone.
	dead chan struct{}
	once sync.Once
}

func (p *process) loop(ctx context.Context, runner *slave.Runner) {
	defer close(p.out)
	defer close(p.dead)
	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case f := <-p.in:
			frames, done := runner.Handle(ctx, f)
			for _, of := range frames {
				select {
				case p.out <- of:
				case <-p.stop:
					return
				case <-ctx.Done():
					return
				}
			}
			if done {
				return
			}
		}
	}
}

func (p *process) Send(f *wire.Frame) error {
	select {
	case <-p.stop:
		return transport.ErrClosed
	case <-p.dead:
		return transport.ErrClosed
	case p.in <- f:
		return nil
	}
}

func (p *process) Frames() <-chan *wire.Frame { return p.out }

func (p *process) Close() error {
	p.kill()
	return nil
}

func (p *process) kill() {
	p.once.Do(func() { close(p.stop) })
}
