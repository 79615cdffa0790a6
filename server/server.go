package server

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/framelink-io/framelink/log"
	"github.com/framelink-io/framelink/metrics"
	"github.com/framelink-io/framelink/rotate"
	"github.com/framelink-io/framelink/sink"
	"github.com/framelink-io/framelink/wire"
)

// State is the server connection state.
type State int32

// Server states. A connection that drops while Connected returns the
// server to Listening; the accept loop keeps running until Close.
const (
	StateUnbound State = iota
	StateListening
	StateConnected
	StateClosed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateListening:
		return "listening"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// peer is the single live connection. The reader is owned by the
// publish path (ack-wait); the sink owns the write side.
type peer struct {
	conn net.Conn
	br   *bufio.Reader
	sink *sink.SocketSink
}

// Server is the producer-side orchestrator. The publish path is invoked
// from the engine's execution context and is inherently sequential; the
// only suspension point is the ack-wait read. The accept loop runs on
// its own goroutine so connection setup never stalls frame production.
type Server struct {
	cfg       Config
	logger    *log.Logger
	collector *metrics.Collector

	multi *sink.Multi
	run   *rotate.RunContext

	ackRequired atomic.Bool

	mu       sync.Mutex
	peer     *peer
	started  bool
	closed   bool
	listener net.Listener

	done       chan struct{}
	acceptDone chan struct{}
}

// New creates a Server from the given config. Configuration errors are
// fatal here, before any I/O begins.
func New(cfg Config, logger *log.Logger, collector *metrics.Collector) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewLogger("server")
	}

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		collector:  collector,
		done:       make(chan struct{}),
		acceptDone: make(chan struct{}),
	}
	s.ackRequired.Store(cfg.AckRequired)
	s.multi = sink.NewMulti(s.onSinkFailure)
	return s, nil
}

// Start opens the configured sinks: it resolves and opens the output
// file (file sink enabled) and binds the listen address (socket sink
// enabled), then begins accepting. Start does not wait for a peer.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.started {
		return ErrAlreadyStarted
	}

	runStart := time.Now()

	if s.cfg.FileEnabled {
		counter := s.cfg.Counter
		if counter == nil && s.cfg.Rotation == rotate.ModeSequence {
			stem := s.cfg.FilePath
			counter = rotate.NewFileCounterStore(stem + ".seq")
		}
		run, err := rotate.Resolve(s.cfg.FilePath, s.cfg.Rotation, runStart, counter)
		if err != nil {
			return fmt.Errorf("resolve output file: %w", err)
		}
		fs, err := sink.OpenFile(run.Path)
		if err != nil {
			return err
		}
		s.run = run
		s.multi.Add(fs)
		s.logger.Info("file sink open", map[string]any{
			"path":     run.Path,
			"rotation": string(run.Mode),
		})
	}

	if s.cfg.SocketEnabled {
		ln, err := net.Listen("tcp", s.cfg.addr())
		if err != nil {
			return fmt.Errorf("bind %s: %w", s.cfg.addr(), err)
		}
		s.listener = ln
		s.logger.Info("listening", map[string]any{"addr": ln.Addr().String()})
		go s.acceptLoop(ln)
	} else {
		close(s.acceptDone)
	}

	s.started = true
	return nil
}

// Addr returns the bound listen address, or nil when the socket sink is
// disabled or the server has not started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// RunContext returns the resolved output file identity for this run,
// or nil when the file sink is disabled.
func (s *Server) RunContext() *rotate.RunContext {
	return s.run
}

// State returns the current connection state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return StateClosed
	case !s.started:
		return StateUnbound
	case s.peer != nil:
		return StateConnected
	default:
		return StateListening
	}
}

// SetAckRequired updates the expects-response setting and, when it
// changes with a peer connected, propagates a fresh Control message.
func (s *Server) SetAckRequired(v bool) {
	if s.ackRequired.Swap(v) == v {
		return
	}
	if s.currentPeer() != nil {
		_ = s.Publish(wire.Control{ExpectsResponse: v})
	}
}

// Publish encodes the message and writes it to every active sink.
//
// When the message is a Frame, ack-required is set, and a peer is
// connected, Publish blocks until one full reply line is read from the
// peer. With no ack timeout configured the wait is indefinite, so an
// unresponsive peer stalls the publish path until the connection drops
// or the server closes. Sink writes
// (including the file) complete before the wait begins, so file
// delivery never queues behind it. Notifications and controls follow
// the same sink path but never trigger the wait: acknowledgement exists
// to pace frame consumption, not informational messages.
func (s *Server) Publish(m wire.Message) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.mu.Unlock()

	line, err := wire.Encode(m)
	if err != nil {
		return err
	}

	s.multi.WriteLine(line)

	isFrame := false
	switch m.(type) {
	case wire.Frame, *wire.Frame:
		isFrame = true
		s.collector.IncFramePublished()
	case wire.Notification, *wire.Notification:
		s.collector.IncNotificationPublished()
	case wire.Control, *wire.Control:
		s.collector.IncControlPublished()
	}

	if isFrame && s.ackRequired.Load() {
		// The server never blocks on a sink that is not live.
		if p := s.currentPeer(); p != nil {
			s.awaitAck(p)
		}
	}
	return nil
}

// Close releases every open handle on every exit path: the listener,
// the peer connection, and all sinks. Closing the peer connection
// unblocks any in-progress ack-wait rather than hanging shutdown.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	ln := s.listener
	p := s.peer
	s.peer = nil
	started := s.started
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	if p != nil {
		_ = p.conn.Close()
	}
	if started {
		<-s.acceptDone
	}

	err := s.multi.Close()
	s.logger.Info("server closed", map[string]any{})
	return err
}

// acceptLoop accepts inbound connections until the listener closes.
func (s *Server) acceptLoop(ln net.Listener) {
	defer close(s.acceptDone)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", map[string]any{"error": err.Error()})
			continue
		}
		s.attachPeer(conn)
	}
}

// attachPeer installs a new peer. A second inbound connection replaces
// the current one: the old connection is closed and both events are
// logged, so the handoff is never silent.
func (s *Server) attachPeer(conn net.Conn) {
	p := &peer{
		conn: conn,
		br:   bufio.NewReader(conn),
		sink: sink.NewSocketSink(conn),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	old := s.peer
	s.peer = p
	s.mu.Unlock()

	if old != nil {
		s.multi.Remove(old.sink.Name())
		s.collector.IncPeerDisconnect()
		s.logger.Warn("peer replaced by new connection", map[string]any{
			"old": old.conn.RemoteAddr().String(),
			"new": conn.RemoteAddr().String(),
		})
	}

	s.multi.Add(p.sink)
	s.collector.IncPeerConnect()
	s.logger.Info("peer connected", map[string]any{
		"remote": conn.RemoteAddr().String(),
	})

	// Same greeting existing peers rely on: a connected notification,
	// then the expects-response setting.
	_ = s.Publish(wire.Notification{Data: "peer connected", Level: wire.LevelInfo})
	_ = s.Publish(wire.Control{ExpectsResponse: s.ackRequired.Load()})
}

// detachPeer removes p if it is still the active peer and returns the
// server to Listening. Safe against races with peer replacement.
func (s *Server) detachPeer(p *peer, cause error) {
	s.mu.Lock()
	if s.peer != p {
		s.mu.Unlock()
		return
	}
	s.peer = nil
	closed := s.closed
	s.mu.Unlock()

	s.multi.Remove(p.sink.Name())
	s.collector.IncPeerDisconnect()

	fields := map[string]any{"remote": p.conn.RemoteAddr().String()}
	if cause != nil {
		fields["cause"] = cause.Error()
	}
	s.logger.Info("peer disconnected", fields)

	if !closed {
		// Remaining sinks (the file) see the lifecycle event too.
		_ = s.Publish(wire.Notification{Data: "peer disconnected", Level: wire.LevelWarning})
	}
}

// currentPeer returns the active peer, or nil while Listening.
func (s *Server) currentPeer() *peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

// awaitAck blocks until one full reply line arrives from the peer.
//
// If more than one complete line is already buffered when the first
// read returns, the extra lines are drained, the most recent one is
// inspected, and the rest are counted as missed replies: the peer sent
// more than one reply per frame, and the publish cadence keeps only
// the latest.
//
// A connection error (peer gone, or Close unblocking the read) detaches
// the peer and returns the server to Listening; it is never surfaced as
// a fault to the publish path. An expired opt-in timeout is a
// recoverable no-response event: logged, counted, peer kept.
func (s *Server) awaitAck(p *peer) {
	if s.cfg.AckTimeout > 0 {
		_ = p.conn.SetReadDeadline(time.Now().Add(s.cfg.AckTimeout))
		defer func() { _ = p.conn.SetReadDeadline(time.Time{}) }()
	}

	line, err := p.br.ReadBytes('\n')
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			s.collector.IncAckTimeout()
			s.logger.Warn("no response from peer within ack timeout", map[string]any{
				"timeout": s.cfg.AckTimeout.String(),
			})
			return
		}
		s.detachPeer(p, err)
		return
	}

	// Drain complete lines that stacked up behind the one we waited
	// for; keep the most recent.
	missed := 0
	for p.br.Buffered() > 0 {
		pending, peekErr := p.br.Peek(p.br.Buffered())
		if peekErr != nil || !bytes.ContainsRune(pending, '\n') {
			break
		}
		extra, readErr := p.br.ReadBytes('\n')
		if readErr != nil {
			break
		}
		missed++
		line = extra
	}
	if missed > 0 {
		s.collector.AddMissedReplies(int64(missed))
		s.logger.Warn("missed replies", map[string]any{"count": missed})
	}

	s.collector.IncAckReceived()

	// Integrity check only: reply structure is handler-defined, so any
	// syntactically valid JSON object satisfies the ack. Malformed
	// input is logged and never crashes the publish path.
	if _, decErr := wire.DecodeLine(line); decErr != nil && wire.IsMalformedJSON(decErr) {
		s.collector.IncDecodeError()
		s.logger.Warn("malformed reply line", map[string]any{"error": decErr.Error()})
	}
}

// onSinkFailure handles a sink degrading to disabled. The failing sink
// stays down for the remainder of the run; when it is the peer's socket
// the server also returns to Listening.
func (s *Server) onSinkFailure(name string, err error) {
	s.collector.IncSinkFailure()
	s.logger.Error("sink disabled", map[string]any{
		"sink":  name,
		"error": err.Error(),
	})

	if p := s.currentPeer(); p != nil && p.sink.Name() == name {
		s.detachPeer(p, err)
		return
	}

	// Raise a notification-class event on the sinks still standing.
	if s.multi.Enabled() > 0 {
		_ = s.Publish(wire.Notification{
			Data:  "sink disabled: " + name,
			Level: wire.LevelWarning,
		})
	}
}
