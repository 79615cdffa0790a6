package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/framelink-io/framelink/log"
	"github.com/framelink-io/framelink/metrics"
	"github.com/framelink-io/framelink/wire"
)

// ObserverFunc receives every successfully decoded message, control
// messages included, before handler dispatch. It exists for
// presentation (printing the stream to a terminal) and must not block.
type ObserverFunc func(raw []byte, msg wire.Message)

// Dispatcher reads one connection sequentially: one message is fully
// processed, including any reply write, before the next read begins.
// That single-threaded discipline is what guarantees reply ordering
// matches request ordering against the server's per-frame ack-wait.
type Dispatcher struct {
	conn      net.Conn
	br        *bufio.Reader
	handler   Handler
	logger    *log.Logger
	collector *metrics.Collector
	observer  ObserverFunc

	// shouldRespond mirrors the server's expects-response setting as
	// last announced via Control. Until a Control arrives the client
	// stays quiet: replying to a server that never reads would fill
	// the send buffer and eventually deadlock both sides.
	shouldRespond bool
}

// Dial connects to the server and returns a dispatcher bound to the
// connection.
func Dial(addr string, handler Handler, logger *log.Logger, collector *metrics.Collector) (*Dispatcher, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	return NewDispatcher(conn, handler, logger, collector), nil
}

// NewDispatcher wraps an established connection. The dispatcher owns
// the connection from here on.
func NewDispatcher(conn net.Conn, handler Handler, logger *log.Logger, collector *metrics.Collector) *Dispatcher {
	if handler == nil {
		handler = NullHandler{}
	}
	if logger == nil {
		logger = log.NewLogger("client")
	}
	return &Dispatcher{
		conn:      conn,
		br:        bufio.NewReader(conn),
		handler:   handler,
		logger:    logger,
		collector: collector,
	}
}

// SetObserver installs a presentation callback. Must be called before Run.
func (d *Dispatcher) SetObserver(fn ObserverFunc) { d.observer = fn }

// Run processes the stream until the connection ends or ctx is
// canceled. A lost connection is reported and the loop exits cleanly
// with a nil error; reconnecting, if wanted, belongs to the caller.
// A single bad line never terminates the connection: decode and
// handler errors are logged and the loop continues.
func (d *Dispatcher) Run(ctx context.Context) error {
	// Canceling the context closes the connection, which unblocks the
	// read below.
	stop := context.AfterFunc(ctx, func() { _ = d.conn.Close() })
	defer stop()
	defer func() { _ = d.conn.Close() }()

	for {
		line, err := d.br.ReadBytes('\n')
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				d.logger.Info("connection closed by server", map[string]any{})
			} else {
				d.logger.Warn("connection lost", map[string]any{"error": err.Error()})
			}
			return nil
		}

		msg, err := wire.DecodeLine(line)
		if err != nil {
			d.collector.IncDecodeError()
			d.logger.Warn("undecodable line", map[string]any{"error": err.Error()})
			continue
		}

		if d.observer != nil {
			d.observer(line, msg)
		}

		// Control updates the local flag and never reaches the handler.
		if ctrl, ok := msg.(wire.Control); ok {
			d.shouldRespond = ctrl.ExpectsResponse
			d.logger.Debug("server expects response", map[string]any{
				"value": ctrl.ExpectsResponse,
			})
			continue
		}

		reply, err := d.handler.Handle(msg)
		if err != nil {
			d.logger.Warn("handler failed", map[string]any{"error": err.Error()})
			continue
		}
		if reply == nil {
			continue
		}

		if !d.shouldRespond {
			// Discarded without transmission; encoding it anyway would
			// be wasted work, not an error.
			d.collector.IncReplySuppressed()
			continue
		}

		encoded, err := wire.Encode(reply)
		if err != nil {
			d.logger.Warn("handler produced unencodable reply", map[string]any{
				"error": err.Error(),
			})
			continue
		}
		if _, err := d.conn.Write(encoded); err != nil {
			d.logger.Warn("reply write failed, connection lost", map[string]any{
				"error": err.Error(),
			})
			return nil
		}
		d.collector.IncReplySent()
	}
}
