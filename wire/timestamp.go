package wire

import (
	"fmt"
	"strings"
	"time"
)

// timestampLayout is the canonical encoding: UTC with a fixed 9-digit
// fraction, e.g. "2020-06-03T22:08:05.000123456Z".
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Timestamp is a nanosecond-precision instant. It encodes as an
// ISO-8601-like UTC string with exactly nine fractional digits and
// decodes leniently: any fractional length is accepted, with digits past
// nanosecond precision truncated (analyzer engines emit up to 12).
type Timestamp struct {
	time.Time
}

// NewTimestamp returns t normalized to UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t.UTC()}
}

// String returns the canonical wire encoding.
func (t Timestamp) String() string {
	return t.UTC().Format(timestampLayout)
}

// MarshalJSON encodes the canonical wire form.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON decodes a wire timestamp string.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("timestamp must be a JSON string, got %s", data)
	}
	parsed, err := ParseTimestamp(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTimestamp parses a wire timestamp. Fractional seconds beyond nine
// digits are truncated rather than rejected.
func ParseTimestamp(s string) (Timestamp, error) {
	parsed, err := time.Parse(time.RFC3339Nano, truncateFraction(s))
	if err != nil {
		return Timestamp{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return Timestamp{parsed.UTC()}, nil
}

// truncateFraction trims sub-nanosecond digits from the fractional part
// so the string fits RFC 3339 nanosecond parsing.
func truncateFraction(s string) string {
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return s
	}
	// The fraction runs until the zone designator.
	end := dot + 1
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end-dot-1 <= 9 {
		return s
	}
	return s[:dot+1+9] + s[end:]
}
