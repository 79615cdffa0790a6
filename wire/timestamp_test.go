package wire

import (
	"testing"
	"time"
)

func TestTimestamp_CanonicalFormat(t *testing.T) {
	ts := NewTimestamp(time.Date(2020, 6, 3, 22, 8, 5, 42, time.UTC))
	want := "2020-06-03T22:08:05.000000042Z"
	if got := ts.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestTimestamp_AlwaysUTC(t *testing.T) {
	loc := time.FixedZone("PST", -8*3600)
	ts := NewTimestamp(time.Date(2020, 6, 3, 14, 8, 5, 0, loc))
	want := "2020-06-03T22:08:05.000000000Z"
	if got := ts.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{
			name:  "nine fractional digits",
			input: "2020-06-03T22:08:05.123456789Z",
			want:  time.Date(2020, 6, 3, 22, 8, 5, 123456789, time.UTC),
		},
		{
			name:  "short fraction",
			input: "2020-06-03T22:08:05.5Z",
			want:  time.Date(2020, 6, 3, 22, 8, 5, 500000000, time.UTC),
		},
		{
			name:  "no fraction",
			input: "2020-06-03T22:08:05Z",
			want:  time.Date(2020, 6, 3, 22, 8, 5, 0, time.UTC),
		},
		{
			// Analyzer engines emit up to twelve fractional digits;
			// sub-nanosecond precision is truncated.
			name:  "twelve fractional digits",
			input: "2020-06-03T22:08:05.123456789123Z",
			want:  time.Date(2020, 6, 3, 22, 8, 5, 123456789, time.UTC),
		},
		{
			name:  "offset normalized to UTC",
			input: "2020-06-03T14:08:05.000000001-08:00",
			want:  time.Date(2020, 6, 3, 22, 8, 5, 1, time.UTC),
		},
		{
			name:    "garbage",
			input:   "yesterday-ish",
			wantErr: true,
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTimestamp(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.input, got.Time, tt.want)
			}
		})
	}
}

func TestTimestamp_JSONRoundTrip(t *testing.T) {
	orig := NewTimestamp(time.Date(2024, 1, 15, 10, 0, 0, 999999999, time.UTC))

	data, err := orig.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON failed: %v", err)
	}

	var decoded Timestamp
	if err := decoded.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON failed: %v", err)
	}
	if !decoded.Equal(orig.Time) {
		t.Errorf("round trip = %v, want %v", decoded.Time, orig.Time)
	}
}

func TestTimestamp_UnmarshalRejectsNonString(t *testing.T) {
	var ts Timestamp
	if err := ts.UnmarshalJSON([]byte(`12345`)); err == nil {
		t.Error("UnmarshalJSON accepted a JSON number")
	}
}
