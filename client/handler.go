// Package client implements the consumer side of the framelink
// transport: a sequential dispatcher that reads the newline-delimited
// stream, routes each message to a pluggable handler, and writes any
// produced reply back over the same connection.
package client

import (
	"fmt"

	"github.com/framelink-io/framelink/wire"
)

// Handler inspects one incoming message and optionally produces a
// reply. Calls arrive strictly in stream order, one at a time, so
// implementations may keep state across calls without locking. A nil
// reply means no response; a non-nil error is logged by the dispatcher
// and the stream continues.
type Handler interface {
	Handle(msg wire.Message) (wire.Message, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(msg wire.Message) (wire.Message, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(msg wire.Message) (wire.Message, error) { return f(msg) }

// NullHandler never replies.
type NullHandler struct{}

// Handle implements Handler.
func (NullHandler) Handle(wire.Message) (wire.Message, error) { return nil, nil }

// AckHandler acknowledges receipt of every message.
type AckHandler struct{}

// Handle implements Handler.
func (AckHandler) Handle(wire.Message) (wire.Message, error) {
	return wire.Object{"type": "ACK"}, nil
}

// EchoHandler replies with the message it received.
type EchoHandler struct{}

// Handle implements Handler.
func (EchoHandler) Handle(msg wire.Message) (wire.Message, error) { return msg, nil }

// Analyzer flavors inferred from frame shape. The engine gives no
// direct indication of which decoder produced a frame, so the handler
// sniffs it from the payload keys.
const (
	analyzerAsyncSerial = "async-serial"
	analyzerI2C         = "i2c"
	analyzerSPI         = "spi"
)

// SerialTextHandler rewrites async-serial data frames into displayable
// text frames and echoes everything else back unchanged. The inferred
// analyzer flavor is sticky: the first recognizable frame decides it
// for the rest of the stream.
type SerialTextHandler struct {
	analyzerType string
}

// Handle implements Handler.
func (h *SerialTextHandler) Handle(msg wire.Message) (wire.Message, error) {
	frame, ok := msg.(wire.Frame)
	if !ok {
		return msg, nil
	}

	if flavor := detectAnalyzer(frame); flavor != "" && h.analyzerType == "" {
		h.analyzerType = flavor
	}

	if h.analyzerType != analyzerAsyncSerial {
		return frame, nil
	}

	b, ok := firstPayloadByte(frame.Data["data"])
	if !ok {
		return frame, nil
	}

	reply := frame
	reply.FrameType = "text"
	reply.Data = cloneData(frame.Data)
	reply.Data["text"] = fmt.Sprintf("0x%02X", b)
	return reply, nil
}

// detectAnalyzer infers the upstream decoder from frame shape. Returns
// the empty string when the shape is not recognizable.
func detectAnalyzer(frame wire.Frame) string {
	if frame.Data == nil {
		return ""
	}

	switch frame.FrameType {
	case "data":
		// i2c and async-serial both carry a data field; i2c data
		// frames always carry an ack field, serial never does.
		if _, ok := frame.Data["ack"]; ok {
			return analyzerI2C
		}
		return analyzerAsyncSerial
	case "address", "start", "stop":
		return analyzerI2C
	case "enable", "disable", "result", "error":
		return analyzerSPI
	default:
		return ""
	}
}

// firstPayloadByte extracts the first byte of a payload value that was
// serialized as a list of integers (JSON numbers decode as float64).
func firstPayloadByte(v any) (byte, bool) {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return 0, false
	}
	n, ok := list[0].(float64)
	if !ok || n < 0 || n > 255 {
		return 0, false
	}
	return byte(n), true
}

func cloneData(data map[string]any) map[string]any {
	clone := make(map[string]any, len(data)+1)
	for k, v := range data {
		clone[k] = v
	}
	return clone
}
