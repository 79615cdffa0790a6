// Package sink abstracts destinations for encoded wire lines.
//
// A sink is anywhere bytes can go: a connected socket, an open file, or
// both behind a Multi. Sinks are isolated from each other: a failure on
// one (peer reset, disk full) degrades that sink to disabled for the
// remainder of the run and never interrupts delivery to the others.
package sink

import "sync"

// Sink is a destination for encoded, newline-terminated lines.
type Sink interface {
	// Name identifies the sink in logs and failure callbacks.
	Name() string

	// WriteLine delivers one encoded line. The line already carries its
	// trailing newline; implementations must write it unmodified.
	WriteLine(line []byte) error

	// Close releases the underlying handle. Safe to call more than once.
	Close() error
}

// StubSink is a test sink that records writes without delivering them.
type StubSink struct {
	mu sync.Mutex

	// Label is returned by Name.
	Label string
	// Lines stores every written line for inspection.
	Lines [][]byte
	// Closed indicates whether Close was called.
	Closed bool
	// ErrorOnWrite, if non-nil, is returned by every WriteLine call.
	ErrorOnWrite error
}

// NewStubSink creates a stub sink with the given label.
func NewStubSink(label string) *StubSink {
	return &StubSink{Label: label}
}

// Name implements Sink.
func (s *StubSink) Name() string { return s.Label }

// WriteLine records the line without delivering it.
func (s *StubSink) WriteLine(line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ErrorOnWrite != nil {
		return s.ErrorOnWrite
	}
	buf := make([]byte, len(line))
	copy(buf, line)
	s.Lines = append(s.Lines, buf)
	return nil
}

// Close marks the sink as closed.
func (s *StubSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// LineCount returns the number of recorded lines.
func (s *StubSink) LineCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Lines)
}

// Verify StubSink implements Sink.
var _ Sink = (*StubSink)(nil)
