package rotate

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// CounterStore owns the durable sequence counter for ModeSequence.
// Sequence numbers must survive process restarts to remain monotonic,
// so the store is read at run start and persisted immediately after the
// run claims its number.
type CounterStore interface {
	// Load returns the current counter value. A store with no prior
	// state returns zero.
	Load() (int, error)
	// Store persists a new counter value.
	Store(n int) error
}

// FileCounterStore persists the counter as a single decimal integer in a
// sidecar file next to the output stem. Plain text keeps the state
// inspectable and operator-editable.
type FileCounterStore struct {
	path string
}

// NewFileCounterStore creates a file-backed counter store.
// Conventionally the path is the output stem plus ".seq".
func NewFileCounterStore(path string) *FileCounterStore {
	return &FileCounterStore{path: path}
}

// Load implements CounterStore. A missing file means zero.
func (s *FileCounterStore) Load() (int, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter file %s: %w", s.path, err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("corrupt counter file %s: %w", s.path, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("corrupt counter file %s: negative value %d", s.path, n)
	}
	return n, nil
}

// Store implements CounterStore. The write goes through a temp file and
// rename so a crash mid-write cannot leave a torn counter.
func (s *FileCounterStore) Store(n int) error {
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(n)+"\n"), 0o644); err != nil {
		return fmt.Errorf("write counter file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("commit counter file %s: %w", s.path, err)
	}
	return nil
}

// Verify FileCounterStore implements CounterStore.
var _ CounterStore = (*FileCounterStore)(nil)

// MemCounterStore is an in-memory counter store for tests.
type MemCounterStore struct {
	mu sync.Mutex
	n  int
	// Stores records every persisted value for assertions.
	Stores []int
}

// NewMemCounterStore creates an in-memory counter store starting at n.
func NewMemCounterStore(n int) *MemCounterStore {
	return &MemCounterStore{n: n}
}

// Load implements CounterStore.
func (s *MemCounterStore) Load() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n, nil
}

// Store implements CounterStore.
func (s *MemCounterStore) Store(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n = n
	s.Stores = append(s.Stores, n)
	return nil
}

// Verify MemCounterStore implements CounterStore.
var _ CounterStore = (*MemCounterStore)(nil)
