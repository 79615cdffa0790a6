// Package wire implements the framelink line protocol.
//
// Every message is a single UTF-8 JSON object terminated by one newline.
// The codec guarantees that encoded messages never contain embedded raw
// newlines (encoding/json escapes them inside strings), which is what
// keeps the newline-delimited stream splittable.
package wire

// MessageType is the top-level type discriminator on the wire.
type MessageType string

// Message type constants. These match the wire shapes consumed by
// existing peers and must not change.
const (
	// TypeFrame carries one decoded analyzer event.
	TypeFrame MessageType = "frame"
	// TypeNotification carries an informational event for the peer.
	TypeNotification MessageType = "client-notification"
	// TypeControl carries the server's expects-response setting.
	TypeControl MessageType = "client-control"
)

// Message is the union of everything that can travel on the wire.
type Message interface {
	// WireType returns the type discriminator written to the wire.
	WireType() MessageType
}

// Level is the severity attached to a Notification.
type Level string

// Notification levels.
const (
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
	LevelDebug   Level = "debug"
)

// Frame is one decoded event emitted by the upstream analyzer engine.
// FrameType and Data are analyzer-defined; the transport treats them as
// opaque. Start and End are the event bounds with Start <= End.
type Frame struct {
	// FrameType is the analyzer-defined event tag (e.g. "data", "address").
	FrameType string `json:"frame-type"`
	// Start is the event start instant.
	Start Timestamp `json:"start"`
	// End is the event end instant.
	End Timestamp `json:"end"`
	// Data is the analyzer-defined payload. Values must be
	// JSON-representable; anything else is an engine-side contract
	// violation, not a codec error.
	Data map[string]any `json:"data"`
}

// WireType implements Message.
func (Frame) WireType() MessageType { return TypeFrame }

// Notification is an informational message independent of the frame
// stream (e.g. "peer connected"). Notifications are never ack-gated.
type Notification struct {
	// Data is the human-readable notification text.
	Data string `json:"data"`
	// Level is the notification severity.
	Level Level `json:"level"`
}

// WireType implements Message.
func (Notification) WireType() MessageType { return TypeNotification }

// Control tells the peer whether the server waits for a reply line after
// each published frame. It is a pacing hint: a client that ignores it
// still works, the server simply never blocks without a connected peer.
type Control struct {
	// ExpectsResponse reports whether the server performs an ack-wait
	// per published frame.
	ExpectsResponse bool `json:"server-expects-response"`
}

// WireType implements Message.
func (Control) WireType() MessageType { return TypeControl }

// Object is an arbitrary JSON object. It is the extension point for
// handler-produced replies, whose structure is deliberately unspecified:
// the transport enforces valid JSON plus newline termination and nothing
// else. Encode writes the map verbatim, including any "type" key.
type Object map[string]any

// WireType implements Message. It returns the object's own "type" value
// when present and a string, and the empty MessageType otherwise.
func (o Object) WireType() MessageType {
	if s, ok := o["type"].(string); ok {
		return MessageType(s)
	}
	return ""
}
