package client

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/framelink-io/framelink/log"
	"github.com/framelink-io/framelink/metrics"
	"github.com/framelink-io/framelink/wire"
)

func quietLogger() *log.Logger {
	return log.NewLogger("client").WithOutput(io.Discard)
}

// recordingHandler records every message it sees and delegates replies
// to a fixed function.
type recordingHandler struct {
	seen  []wire.Message
	reply func(wire.Message) (wire.Message, error)
}

func (h *recordingHandler) Handle(msg wire.Message) (wire.Message, error) {
	h.seen = append(h.seen, msg)
	if h.reply == nil {
		return nil, nil
	}
	return h.reply(msg)
}

// startDispatcher runs a dispatcher over a pipe and returns the server
// side of the connection plus a done channel with Run's result.
func startDispatcher(t *testing.T, handler Handler, collector *metrics.Collector) (net.Conn, chan error) {
	t.Helper()
	serverEnd, clientEnd := net.Pipe()
	t.Cleanup(func() { _ = serverEnd.Close() })

	d := NewDispatcher(clientEnd, handler, quietLogger(), collector)
	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()
	return serverEnd, done
}

func writeLine(t *testing.T, conn net.Conn, m wire.Message) {
	t.Helper()
	line, err := wire.Encode(m)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if _, err := conn.Write(line); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func writeRaw(t *testing.T, conn net.Conn, s string) {
	t.Helper()
	if _, err := conn.Write([]byte(s)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func testFrame() wire.Frame {
	now := time.Now()
	return wire.Frame{
		FrameType: "data",
		Start:     wire.NewTimestamp(now),
		End:       wire.NewTimestamp(now.Add(time.Microsecond)),
		Data:      map[string]any{"data": []any{float64(0x55)}},
	}
}

func expectReply(t *testing.T, br *bufio.Reader) wire.Message {
	t.Helper()
	line, err := br.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read reply failed: %v", err)
	}
	msg, err := wire.DecodeLine(line)
	if err != nil && !wire.IsUnknownType(err) {
		t.Fatalf("reply %q does not decode: %v", line, err)
	}
	return msg
}

func TestDispatcher_ReplyWhenServerExpectsResponse(t *testing.T) {
	collector := metrics.NewCollector("", "")
	serverEnd, _ := startDispatcher(t, AckHandler{}, collector)
	br := bufio.NewReader(serverEnd)

	writeLine(t, serverEnd, wire.Control{ExpectsResponse: true})
	writeLine(t, serverEnd, testFrame())

	line, err := br.ReadBytes('\n')
	if err != nil {
		t.Fatalf("no reply: %v", err)
	}
	if string(line) != `{"type":"ACK"}`+"\n" {
		t.Errorf("reply = %q, want ACK object", line)
	}
	if got := collector.Snapshot().RepliesSent; got != 1 {
		t.Errorf("RepliesSent = %d, want 1", got)
	}
}

func TestDispatcher_NeverRepliesWhenFlagFalse(t *testing.T) {
	// Once server-expects-response=false is received, the client never
	// writes a reply, regardless of what the handler returns. Strict
	// alternation makes this observable: flip the flag back on, send a
	// second frame, and the only reply on the wire belongs to it.
	collector := metrics.NewCollector("", "")
	handler := &recordingHandler{reply: func(wire.Message) (wire.Message, error) {
		return wire.Object{"type": "ACK"}, nil
	}}
	serverEnd, _ := startDispatcher(t, handler, collector)
	br := bufio.NewReader(serverEnd)

	writeLine(t, serverEnd, wire.Control{ExpectsResponse: false})
	writeLine(t, serverEnd, testFrame())
	writeLine(t, serverEnd, wire.Control{ExpectsResponse: true})
	writeLine(t, serverEnd, testFrame())

	expectReply(t, br) // the one and only reply

	snap := collector.Snapshot()
	if snap.RepliesSent != 1 {
		t.Errorf("RepliesSent = %d, want 1", snap.RepliesSent)
	}
	if snap.RepliesSuppressed != 1 {
		t.Errorf("RepliesSuppressed = %d, want 1 (handler reply discarded without transmission)", snap.RepliesSuppressed)
	}
	if len(handler.seen) != 2 {
		t.Errorf("handler saw %d messages, want 2 frames", len(handler.seen))
	}
}

func TestDispatcher_DefaultIsQuiet(t *testing.T) {
	// Before any control arrives the client does not reply.
	collector := metrics.NewCollector("", "")
	serverEnd, _ := startDispatcher(t, AckHandler{}, collector)

	writeLine(t, serverEnd, testFrame())
	writeLine(t, serverEnd, wire.Control{ExpectsResponse: true})
	writeLine(t, serverEnd, testFrame())

	expectReply(t, bufio.NewReader(serverEnd))
	if got := collector.Snapshot().RepliesSuppressed; got != 1 {
		t.Errorf("RepliesSuppressed = %d, want 1", got)
	}
}

func TestDispatcher_ControlNotForwardedToHandler(t *testing.T) {
	handler := &recordingHandler{}
	serverEnd, done := startDispatcher(t, handler, nil)

	writeLine(t, serverEnd, wire.Control{ExpectsResponse: true})
	writeLine(t, serverEnd, wire.Notification{Data: "hello", Level: wire.LevelInfo})
	_ = serverEnd.Close()
	<-done

	if len(handler.seen) != 1 {
		t.Fatalf("handler saw %d messages, want 1", len(handler.seen))
	}
	if _, ok := handler.seen[0].(wire.Notification); !ok {
		t.Errorf("handler saw %T, want the notification only", handler.seen[0])
	}
}

func TestDispatcher_BadLineDoesNotTerminate(t *testing.T) {
	collector := metrics.NewCollector("", "")
	serverEnd, _ := startDispatcher(t, AckHandler{}, collector)
	br := bufio.NewReader(serverEnd)

	writeLine(t, serverEnd, wire.Control{ExpectsResponse: true})
	writeRaw(t, serverEnd, "this is not json\n")
	writeRaw(t, serverEnd, `{"no":"type"}`+"\n")
	writeRaw(t, serverEnd, `{"type":"from-the-future"}`+"\n")
	writeLine(t, serverEnd, testFrame())

	expectReply(t, br) // stream survived three bad lines

	if got := collector.Snapshot().DecodeErrors; got != 3 {
		t.Errorf("DecodeErrors = %d, want 3", got)
	}
}

func TestDispatcher_HandlerErrorContinues(t *testing.T) {
	calls := 0
	handler := HandlerFunc(func(msg wire.Message) (wire.Message, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("transient handler failure")
		}
		return wire.Object{"type": "ACK"}, nil
	})
	serverEnd, _ := startDispatcher(t, handler, nil)
	br := bufio.NewReader(serverEnd)

	writeLine(t, serverEnd, wire.Control{ExpectsResponse: true})
	writeLine(t, serverEnd, testFrame())
	writeLine(t, serverEnd, testFrame())

	expectReply(t, br)
	if calls != 2 {
		t.Errorf("handler calls = %d, want 2", calls)
	}
}

func TestDispatcher_ConnectionLostExitsCleanly(t *testing.T) {
	serverEnd, done := startDispatcher(t, NullHandler{}, nil)

	writeLine(t, serverEnd, testFrame())
	_ = serverEnd.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v on connection loss, want nil (clean exit, no implicit retry)", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after connection loss")
	}
}

func TestDispatcher_ContextCancelUnblocksRead(t *testing.T) {
	serverEnd, clientEnd := net.Pipe()
	defer serverEnd.Close()

	d := NewDispatcher(clientEnd, NullHandler{}, quietLogger(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not unblock the read loop")
	}
}

func TestDispatcher_ObserverSeesEverything(t *testing.T) {
	var observed []wire.Message
	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()

	d := NewDispatcher(clientSide, NullHandler{}, quietLogger(), nil)
	d.SetObserver(func(_ []byte, msg wire.Message) { observed = append(observed, msg) })
	finished := make(chan error, 1)
	go func() { finished <- d.Run(context.Background()) }()

	writeLine(t, serverSide, wire.Control{ExpectsResponse: false})
	writeLine(t, serverSide, wire.Notification{Data: "hi", Level: wire.LevelInfo})
	writeLine(t, serverSide, testFrame())
	_ = serverSide.Close()
	<-finished

	if len(observed) != 3 {
		t.Fatalf("observer saw %d messages, want 3 (controls included)", len(observed))
	}
	if _, ok := observed[0].(wire.Control); !ok {
		t.Errorf("observed[0] = %T, want Control", observed[0])
	}
}
