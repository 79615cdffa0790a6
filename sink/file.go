package sink

import (
	"fmt"
	"os"
	"sync"
)

// FileSink writes lines to an open file. The file is opened in append
// mode: rotation (sequence, timestamp) guarantees a fresh path before the
// sink is created, and append mode intentionally continues a pre-existing
// file. Each line is a single unbuffered write so file delivery never
// lags the publish path or queues behind an ack-wait.
type FileSink struct {
	mu     sync.Mutex
	file   *os.File
	path   string
	closed bool
}

// OpenFile opens (or creates) the file at path for appending.
func OpenFile(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output file %s: %w", path, err)
	}
	return &FileSink{file: f, path: path}, nil
}

// Name implements Sink.
func (s *FileSink) Name() string { return "file:" + s.path }

// WriteLine implements Sink.
func (s *FileSink) WriteLine(line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("file sink %s: already closed", s.path)
	}
	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

// Close implements Sink.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}

// Verify FileSink implements Sink.
var _ Sink = (*FileSink)(nil)
