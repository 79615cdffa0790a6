package render

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/framelink-io/framelink/metrics"
	"github.com/framelink-io/framelink/wire"
)

func testFrame() wire.Frame {
	start := time.Date(2026, 2, 7, 12, 0, 0, 123456789, time.UTC)
	return wire.Frame{
		FrameType: "data",
		Start:     wire.NewTimestamp(start),
		End:       wire.NewTimestamp(start.Add(time.Microsecond)),
		Data:      map[string]any{"data": []any{float64(0x55)}, "error": false},
	}
}

func TestMessage_Frame(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(&buf, true)

	r.Message(testFrame())

	got := buf.String()
	if !strings.Contains(got, "data") {
		t.Errorf("output missing frame type: %s", got)
	}
	if !strings.Contains(got, "2026-02-07T12:00:00.123456789Z") {
		t.Errorf("output missing start timestamp: %s", got)
	}
	if !strings.HasSuffix(got, "\n") {
		t.Error("output should end with a newline")
	}
}

func TestMessage_FrameDataDeterministicOrder(t *testing.T) {
	var first string
	for i := 0; i < 5; i++ {
		var buf bytes.Buffer
		r := NewRendererWithWriter(&buf, true)
		r.Message(testFrame())
		if i == 0 {
			first = buf.String()
			continue
		}
		if buf.String() != first {
			t.Fatal("payload key order varies between renders")
		}
	}
	// Sorted keys: data before error.
	if strings.Index(first, "data=") > strings.Index(first, "error=") {
		t.Errorf("payload keys not sorted: %s", first)
	}
}

func TestMessage_Notification(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(&buf, true)

	r.Message(wire.Notification{Data: "peer connected", Level: wire.LevelWarning})

	got := buf.String()
	if !strings.Contains(got, "warning") {
		t.Errorf("output missing level: %s", got)
	}
	if !strings.Contains(got, "peer connected") {
		t.Errorf("output missing payload: %s", got)
	}
}

func TestMessage_Control(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(&buf, true)

	r.Message(wire.Control{ExpectsResponse: true})

	got := buf.String()
	if !strings.Contains(got, "server-expects-response=true") {
		t.Errorf("output missing control value: %s", got)
	}
}

func TestMessage_NoColorHasNoEscapes(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(&buf, true)

	r.Message(testFrame())
	r.Message(wire.Control{})

	if strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("no-color output contains ANSI escapes: %q", buf.String())
	}
}

func TestSummary(t *testing.T) {
	collector := metrics.NewCollector("127.0.0.1:50626", "append")
	collector.IncFramePublished()
	collector.IncFramePublished()
	collector.IncAckReceived()
	collector.AddMissedReplies(3)

	var buf bytes.Buffer
	r := NewRendererWithWriter(&buf, true)
	r.Summary(collector.Snapshot())

	got := buf.String()
	for _, want := range []string{"capture summary", "frames", "2", "missed replies", "3"} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, got)
		}
	}
}
