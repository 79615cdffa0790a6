package sink

import "sync"

// FailureFunc is invoked when a sink write fails and the sink is
// disabled for the remainder of the run.
type FailureFunc func(name string, err error)

// Multi fans one line out to every attached sink with per-sink failure
// isolation: a failing sink is disabled and reported through the failure
// callback, and delivery to the remaining sinks continues. WriteLine
// itself never returns an error, so a dead socket cannot abort the
// publish path while the file keeps receiving data.
type Multi struct {
	mu        sync.Mutex
	entries   []*multiEntry
	onFailure FailureFunc
}

type multiEntry struct {
	sink     Sink
	disabled bool
}

// NewMulti creates an empty fan-out. onFailure may be nil.
func NewMulti(onFailure FailureFunc) *Multi {
	return &Multi{onFailure: onFailure}
}

// Add attaches a sink.
func (m *Multi) Add(s Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, &multiEntry{sink: s})
}

// Remove detaches and closes the sink with the given name. Returns true
// if a sink was removed.
func (m *Multi) Remove(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, e := range m.entries {
		if e.sink.Name() == name {
			_ = e.sink.Close()
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return true
		}
	}
	return false
}

// WriteLine delivers the line to every enabled sink. Failures disable
// the offending sink and fire the callback; other sinks are unaffected.
func (m *Multi) WriteLine(line []byte) {
	m.mu.Lock()
	targets := make([]*multiEntry, 0, len(m.entries))
	for _, e := range m.entries {
		if !e.disabled {
			targets = append(targets, e)
		}
	}
	m.mu.Unlock()

	for _, e := range targets {
		if err := e.sink.WriteLine(line); err != nil {
			m.mu.Lock()
			e.disabled = true
			m.mu.Unlock()
			if m.onFailure != nil {
				m.onFailure(e.sink.Name(), err)
			}
		}
	}
}

// Enabled returns the number of sinks still accepting writes.
func (m *Multi) Enabled() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, e := range m.entries {
		if !e.disabled {
			n++
		}
	}
	return n
}

// Close releases every attached sink, disabled ones included. Close
// errors are collected but only the first is returned; every sink is
// closed regardless.
func (m *Multi) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var first error
	for _, e := range m.entries {
		if err := e.sink.Close(); err != nil && first == nil {
			first = err
		}
	}
	m.entries = nil
	return first
}
