package sink

import (
	"fmt"
	"net"
	"sync"
)

// SocketSink writes lines to a connected peer. net.Conn.Write has
// sendall semantics, so one call delivers the whole line or fails.
type SocketSink struct {
	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

// NewSocketSink wraps an established connection. The sink shares the
// connection with the server's ack-read path but owns the write side.
func NewSocketSink(conn net.Conn) *SocketSink {
	return &SocketSink{conn: conn}
}

// Name implements Sink.
func (s *SocketSink) Name() string { return "socket:" + s.conn.RemoteAddr().String() }

// WriteLine implements Sink.
func (s *SocketSink) WriteLine(line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("socket sink: already closed")
	}
	if _, err := s.conn.Write(line); err != nil {
		return fmt.Errorf("write to peer %s: %w", s.conn.RemoteAddr(), err)
	}
	return nil
}

// Close implements Sink. It closes the underlying connection, which also
// unblocks any reader waiting on it.
func (s *SocketSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

// Verify SocketSink implements Sink.
var _ Sink = (*SocketSink)(nil)
