package ws

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/ostrokach/biskit/slave"
	"github.com/ostrokach/biskit/wire"
)

// DaemonOption configures a Daemon.
type DaemonOption func(*Daemon)

// WithDaemonLogger sets the daemon's logger.
func WithDaemonLogger(logger *slog.Logger) DaemonOption {
	return func(d *Daemon) { d.logger = logger }
}

// WithDaemonCodec selects the wire codec by name.
func WithDaemonCodec(name string) DaemonOption {
	return func(d *Daemon) { d.codec = wire.GetCodec(name) }
}

// WithRunnerOptions passes options to every connection's Runner.
func WithRunnerOptions(opts ...slave.Option) DaemonOption {
	return func(d *Daemon) { d.runnerOpts = opts }
}

// Daemon is the worker-side WebSocket server. It accepts one
// coordinator connection per worker slot and runs a slave.Runner for
// each.
type Daemon struct {
	fn         slave.WorkFunc
	codec      wire.Codec
	logger     *slog.Logger
	runnerOpts []slave.Option
}

// NewDaemon creates a worker daemon around fn.
func NewDaemon(fn slave.WorkFunc, opts ...DaemonOption) *Daemon {
	d := &Daemon{
		fn:     fn,
		codec:  wire.GetCodec(wire.CodecNameMsgpack),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ListenAndServe accepts coordinator connections on addr until ctx is
// canceled.
func (d *Daemon) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return d.Serve(ctx, ln)
}

// Serve accepts coordinator connections on ln until ctx is canceled.
// It takes ownership of the listener.
func (d *Daemon) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			d.logger.Warn("ws upgrade failed", slog.String("error", err.Error()))
			return
		}
		go d.serveConn(ctx, conn)
	})

	srv := &http.Server{Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	d.logger.Info("worker daemon listening", slog.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// serveConn pumps frames between one coordinator connection and a
// fresh Runner until shutdown or disconnect.
func (d *Daemon) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	runner := slave.NewRunner(d.fn, append([]slave.Option{slave.WithLogger(d.logger)}, d.runnerOpts...)...)

	for {
		data, op, err := wsutil.ReadClientData(conn)
		if err != nil {
			return
		}
		if op != ws.OpText && op != ws.OpBinary {
			continue
		}

		f, err := d.codec.Decode(data)
		if err != nil {
			d.logger.Warn("frame decode error", slog.String("error", err.Error()))
			continue
		}

		frames, done := runner.Handle(ctx, f)
		for _, of := range frames {
			out, err := d.codec.Encode(of)
			if err != nil {
				d.logger.Error("frame encode error", slog.String("error", err.Error()))
				continue
			}
			if err := wsutil.WriteServerMessage(conn, opFor(d.codec), out); err != nil {
				return
			}
		}
		if done {
			return
		}
	}
}
