package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// DecodeErrorKind classifies line decoding errors.
type DecodeErrorKind int

const (
	// DecodeErrorMalformedJSON indicates the line is not valid JSON, or
	// is valid JSON whose fields cannot populate the declared type.
	DecodeErrorMalformedJSON DecodeErrorKind = iota
	// DecodeErrorMissingType indicates the type discriminator is absent.
	DecodeErrorMissingType
	// DecodeErrorUnknownType indicates an unrecognized type tag. The tag
	// is preserved in the error for forward compatibility: new message
	// types are reported, never crashed on.
	DecodeErrorUnknownType
)

// DecodeError represents a per-line decoding error. All decode errors
// are recoverable: the caller logs and continues with the next line.
type DecodeError struct {
	Kind DecodeErrorKind
	// Tag is the offending type tag for DecodeErrorUnknownType.
	Tag string
	Msg string
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsMissingType reports whether err is a missing-discriminator error.
func IsMissingType(err error) bool { return hasKind(err, DecodeErrorMissingType) }

// IsUnknownType reports whether err is an unknown-tag error.
func IsUnknownType(err error) bool { return hasKind(err, DecodeErrorUnknownType) }

// IsMalformedJSON reports whether err is a malformed-JSON error.
func IsMalformedJSON(err error) bool { return hasKind(err, DecodeErrorMalformedJSON) }

func hasKind(err error, kind DecodeErrorKind) bool {
	var decErr *DecodeError
	if errors.As(err, &decErr) {
		return decErr.Kind == kind
	}
	return false
}

// Encode encodes a message as one JSON object followed by exactly one
// newline. It fails only when the payload is not JSON-representable,
// which is a contract violation by the producer, not a transport
// condition. The output never contains an embedded raw newline:
// encoding/json escapes control characters inside strings, and compact
// marshaling emits none between tokens.
func Encode(m Message) ([]byte, error) {
	var (
		body []byte
		err  error
	)

	switch msg := m.(type) {
	case Frame:
		body, err = json.Marshal(struct {
			Type MessageType `json:"type"`
			Frame
		}{TypeFrame, msg})
	case *Frame:
		return Encode(*msg)
	case Notification:
		body, err = json.Marshal(struct {
			Type MessageType `json:"type"`
			Notification
		}{TypeNotification, msg})
	case *Notification:
		return Encode(*msg)
	case Control:
		body, err = json.Marshal(struct {
			Type MessageType `json:"type"`
			Control
		}{TypeControl, msg})
	case *Control:
		return Encode(*msg)
	case Object:
		// Handler-defined replies marshal verbatim.
		body, err = json.Marshal(map[string]any(msg))
	default:
		return nil, fmt.Errorf("unsupported message type %T", m)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", m.WireType(), err)
	}

	return append(body, '\n'), nil
}

// typeProbe peeks at the discriminator without decoding the full message.
// RawMessage distinguishes an absent field from an empty one.
type typeProbe struct {
	Type json.RawMessage `json:"type"`
}

// DecodeLine decodes one already-delimited line into a Message. The
// caller owns stream splitting; a trailing newline (or CRLF) is
// tolerated. The probe order matters: a line with an absent "type" field
// reports MissingType even when the rest of the object is junk.
func DecodeLine(line []byte) (Message, error) {
	line = bytes.TrimRight(line, "\r\n")

	var probe typeProbe
	if err := json.Unmarshal(line, &probe); err != nil {
		return nil, &DecodeError{
			Kind: DecodeErrorMalformedJSON,
			Msg:  "malformed JSON line",
			Err:  err,
		}
	}
	if len(probe.Type) == 0 {
		return nil, &DecodeError{
			Kind: DecodeErrorMissingType,
			Msg:  "message has no type field",
		}
	}

	var tag string
	if err := json.Unmarshal(probe.Type, &tag); err != nil {
		return nil, &DecodeError{
			Kind: DecodeErrorUnknownType,
			Tag:  string(probe.Type),
			Msg:  fmt.Sprintf("non-string type tag %s", probe.Type),
		}
	}

	switch MessageType(tag) {
	case TypeFrame:
		var msg Frame
		if err := json.Unmarshal(line, &msg); err != nil {
			return nil, &DecodeError{
				Kind: DecodeErrorMalformedJSON,
				Msg:  "malformed frame message",
				Err:  err,
			}
		}
		return msg, nil
	case TypeNotification:
		var msg Notification
		if err := json.Unmarshal(line, &msg); err != nil {
			return nil, &DecodeError{
				Kind: DecodeErrorMalformedJSON,
				Msg:  "malformed notification message",
				Err:  err,
			}
		}
		return msg, nil
	case TypeControl:
		var msg Control
		if err := json.Unmarshal(line, &msg); err != nil {
			return nil, &DecodeError{
				Kind: DecodeErrorMalformedJSON,
				Msg:  "malformed control message",
				Err:  err,
			}
		}
		return msg, nil
	default:
		return nil, &DecodeError{
			Kind: DecodeErrorUnknownType,
			Tag:  tag,
			Msg:  fmt.Sprintf("unknown message type %q", tag),
		}
	}
}
