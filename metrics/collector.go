// Package metrics provides per-run metrics collection for the transport.
//
// The Collector accumulates counters during a single capture run. It is
// a leaf package with no internal dependencies. All increment methods
// are nil-receiver safe so instrumentation never forces callers to
// carry a collector.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of transport metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after
// creation.
type Snapshot struct {
	// Publish path
	FramesPublished        int64
	NotificationsPublished int64
	ControlsPublished      int64

	// Ack-wait
	AcksReceived  int64
	MissedReplies int64
	AckTimeouts   int64

	// Decode
	DecodeErrors int64

	// Sinks
	SinkFailures int64

	// Connection lifecycle
	PeerConnects    int64
	PeerDisconnects int64

	// Client reply path
	RepliesSent       int64
	RepliesSuppressed int64

	// Dimensions (informational, set at construction)
	ListenAddr string
	Rotation   string
}

// counter identifies one accumulated value.
type counter int

const (
	framesPublished counter = iota
	notificationsPublished
	controlsPublished
	acksReceived
	missedReplies
	ackTimeouts
	decodeErrors
	sinkFailures
	peerConnects
	peerDisconnects
	repliesSent
	repliesSuppressed
	numCounters
)

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex.
type Collector struct {
	mu       sync.Mutex
	counters [numCounters]int64

	listenAddr string
	rotation   string
}

// NewCollector creates a Collector with dimension labels. Both labels
// are informational and may be empty (e.g. on the client side).
func NewCollector(listenAddr, rotation string) *Collector {
	return &Collector{
		listenAddr: listenAddr,
		rotation:   rotation,
	}
}

// IncFramePublished records a published frame message.
func (c *Collector) IncFramePublished() { c.add(framesPublished, 1) }

// IncNotificationPublished records a published notification message.
func (c *Collector) IncNotificationPublished() { c.add(notificationsPublished, 1) }

// IncControlPublished records a published control message.
func (c *Collector) IncControlPublished() { c.add(controlsPublished, 1) }

// IncAckReceived records one completed ack-wait.
func (c *Collector) IncAckReceived() { c.add(acksReceived, 1) }

// AddMissedReplies records reply lines that arrived stacked behind the
// one the ack-wait consumed.
func (c *Collector) AddMissedReplies(n int64) { c.add(missedReplies, n) }

// IncAckTimeout records an opt-in bounded ack-wait expiring.
func (c *Collector) IncAckTimeout() { c.add(ackTimeouts, 1) }

// IncDecodeError records a recoverable per-line decode failure.
func (c *Collector) IncDecodeError() { c.add(decodeErrors, 1) }

// IncSinkFailure records a sink degrading to disabled.
func (c *Collector) IncSinkFailure() { c.add(sinkFailures, 1) }

// IncPeerConnect records an accepted peer connection.
func (c *Collector) IncPeerConnect() { c.add(peerConnects, 1) }

// IncPeerDisconnect records a peer connection ending.
func (c *Collector) IncPeerDisconnect() { c.add(peerDisconnects, 1) }

// IncReplySent records a handler reply written back to the server.
func (c *Collector) IncReplySent() { c.add(repliesSent, 1) }

// IncReplySuppressed records a handler reply discarded because the
// server declared it expects no response.
func (c *Collector) IncReplySuppressed() { c.add(repliesSuppressed, 1) }

func (c *Collector) add(which counter, n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.counters[which] += n
	c.mu.Unlock()
}

// Snapshot returns an immutable copy of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		FramesPublished:        c.counters[framesPublished],
		NotificationsPublished: c.counters[notificationsPublished],
		ControlsPublished:      c.counters[controlsPublished],
		AcksReceived:           c.counters[acksReceived],
		MissedReplies:          c.counters[missedReplies],
		AckTimeouts:            c.counters[ackTimeouts],
		DecodeErrors:           c.counters[decodeErrors],
		SinkFailures:           c.counters[sinkFailures],
		PeerConnects:           c.counters[peerConnects],
		PeerDisconnects:        c.counters[peerDisconnects],
		RepliesSent:            c.counters[repliesSent],
		RepliesSuppressed:      c.counters[repliesSuppressed],
		ListenAddr:             c.listenAddr,
		Rotation:               c.rotation,
	}
}
