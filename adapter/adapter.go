// Package adapter defines the capture-notification boundary.
//
// Adapters announce finished captures to downstream systems so that
// post-processing (archiving, indexing, alerting) can pick up the
// output file without polling. The CLI owns adapter lifecycle; users
// provide configuration only.
package adapter

import "context"

// CaptureCompletedEvent is the payload published when a capture run
// ends and its sinks are closed.
type CaptureCompletedEvent struct {
	EventType  string `json:"event_type"` // always "capture_completed"
	RunStart   string `json:"run_start"`  // canonical nanosecond timestamp
	DurationMs int64  `json:"duration_ms"`
	OutputPath string `json:"output_path,omitempty"`
	Rotation   string `json:"rotation,omitempty"`

	Frames        int64 `json:"frames"`
	Notifications int64 `json:"notifications"`
	AcksReceived  int64 `json:"acks_received"`
	MissedReplies int64 `json:"missed_replies"`
	AckTimeouts   int64 `json:"ack_timeouts"`
	SinkFailures  int64 `json:"sink_failures"`
}

// Adapter publishes capture completion events to a downstream system.
// Implementations must be safe for single-use per run.
type Adapter interface {
	// Publish sends a capture completion event to the downstream
	// system. Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *CaptureCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
