// Package ws provides a WebSocket transport. The coordinator dials a
// worker daemon on each host and exchanges frames over the connection;
// a closed connection is how the coordinator learns a worker died.
//
// JSON frames travel as text messages, msgpack frames as binary. Both
// sides must be configured with the same codec.
package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/ostrokach/biskit/id"
	"github.com/ostrokach/biskit/transport"
	"github.com/ostrokach/biskit/wire"
)

const frameBuffer = 16

func opFor(codec wire.Codec) ws.OpCode {
	if codec.Name() == wire.CodecNameJSON {
		return ws.OpText
	}
	return ws.OpBinary
}

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the transport's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) { t.logger = logger }
}

// WithCodec selects the wire codec by name.
func WithCodec(name string) Option {
	return func(t *Transport) { t.codec = wire.GetCodec(name) }
}

// Transport dials worker daemons over WebSocket. Endpoints maps host
// name to the daemon's ws:// URL.
type Transport struct {
	endpoints map[string]string
	codec     wire.Codec
	logger    *slog.Logger
}

// New creates a WebSocket transport for the given host endpoints.
func New(endpoints map[string]string, opts ...Option) *Transport {
	t := &Transport{
		endpoints: endpoints,
		codec:     wire.GetCodec(wire.CodecNameMsgpack),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Spawn dials the daemon on host and starts the read pump.
func (t *Transport) Spawn(ctx context.Context, host string, workerID id.WorkerID) (transport.Process, error) {
	url, ok := t.endpoints[host]
	if !ok {
		return nil, fmt.Errorf("ws: no endpoint for host %q", host)
	}

	conn, _, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("ws: dial %q: %w", url, err)
	}

	p := &process{
		conn:   conn,
		codec:  t.codec,
		out:    make(chan *wire.Frame, frameBuffer),
		done:   make(chan struct{}),
		logger: t.logger,
	}
	go p.readLoop()

	t.logger.Debug("ws worker connected",
		slog.String("worker_id", workerID.String()),
		slog.String("host", host),
		slog.String("url", url),
	)
	return p, nil
}

// process is a dialed worker connection.
type process struct {
	conn   net.Conn
	codec  wire.Codec
	out    chan *wire.Frame
	done   chan struct{}
	logger *slog.Logger

	writeMu sync.Mutex
	once    sync.Once
	closed  bool
}

func (p *process) readLoop() {
	defer close(p.out)
	for {
		data, op, err := wsutil.ReadServerData(p.conn)
		if err != nil {
			p.writeMu.Lock()
			closed := p.closed
			p.writeMu.Unlock()
			if !closed {
				p.logger.Warn("ws read error", slog.String("error", err.Error()))
			}
			return
		}
		if op != ws.OpText && op != ws.OpBinary {
			continue
		}

		f, err := p.codec.Decode(data)
		if err != nil {
			p.logger.Warn("ws frame decode error", slog.String("error", err.Error()))
			continue
		}
		// The reader may be gone once the process is closed; never
		// block on a frame nobody will drain.
		select {
		case p.out <- f:
		case <-p.done:
			return
		}
	}
}

func (p *process) Send(f *wire.Frame) error {
	data, err := p.codec.Encode(f)
	if err != nil {
		return fmt.Errorf("ws: encode frame: %w", err)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if p.closed {
		return transport.ErrClosed
	}
	if err := wsutil.WriteClientMessage(p.conn, opFor(p.codec), data); err != nil {
		return fmt.Errorf("ws: write frame: %w", err)
	}
	return nil
}

func (p *process) Frames() <-chan *wire.Frame { return p.out }

func (p *process) Close() error {
	p.once.Do(func() {
		p.writeMu.Lock()
		p.closed = true
		p.writeMu.Unlock()
		close(p.done)
		p.conn.Close()
	})
	return nil
}
