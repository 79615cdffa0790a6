// Package render formats wire messages and capture summaries for
// terminal output.
//
// Color handling:
//   - --no-color switches every style off
//   - non-TTY output defaults to no color
package render

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/framelink-io/framelink/metrics"
	"github.com/framelink-io/framelink/wire"
)

// Styles for stream rendering. Kept in one place so the listen and
// serve commands stay visually consistent.
var (
	frameTypeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	timeStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	controlStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	infoStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	debugStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle    = lipgloss.NewStyle().Bold(true)
)

// Renderer writes human-readable lines for decoded messages.
type Renderer struct {
	out     io.Writer
	noColor bool
}

// NewRenderer creates a renderer writing to stdout. Color is disabled
// when requested or when stdout is not a TTY.
func NewRenderer(noColor bool) *Renderer {
	return &Renderer{
		out:     os.Stdout,
		noColor: noColor || !isTTY(os.Stdout),
	}
}

// NewRendererWithWriter creates a renderer with a custom writer (for testing).
func NewRendererWithWriter(out io.Writer, noColor bool) *Renderer {
	return &Renderer{out: out, noColor: noColor}
}

// Message renders one decoded wire message as a single line.
func (r *Renderer) Message(msg wire.Message) {
	switch m := msg.(type) {
	case wire.Frame:
		fmt.Fprintf(r.out, "%s  %s  %s\n",
			r.style(timeStyle, m.Start.String()),
			r.style(frameTypeStyle, padType(m.FrameType)),
			formatData(m.Data),
		)
	case wire.Notification:
		fmt.Fprintf(r.out, "%s  %v\n",
			r.style(r.levelStyle(m.Level), padType(string(m.Level))),
			m.Data,
		)
	case wire.Control:
		fmt.Fprintf(r.out, "%s  server-expects-response=%t\n",
			r.style(controlStyle, padType("control")),
			m.ExpectsResponse,
		)
	default:
		fmt.Fprintf(r.out, "%s  %v\n", r.style(debugStyle, padType("other")), msg)
	}
}

// Summary renders end-of-capture statistics.
func (r *Renderer) Summary(snap metrics.Snapshot) {
	fmt.Fprintf(r.out, "\n%s\n", r.style(headerStyle, "capture summary"))
	rows := []struct {
		label string
		value int64
	}{
		{"frames", snap.FramesPublished},
		{"notifications", snap.NotificationsPublished},
		{"controls", snap.ControlsPublished},
		{"acks received", snap.AcksReceived},
		{"missed replies", snap.MissedReplies},
		{"ack timeouts", snap.AckTimeouts},
		{"decode errors", snap.DecodeErrors},
		{"sink failures", snap.SinkFailures},
	}
	for _, row := range rows {
		fmt.Fprintf(r.out, "  %-16s %d\n", row.label, row.value)
	}
}

// levelStyle maps a notification level to a style.
func (r *Renderer) levelStyle(level wire.Level) lipgloss.Style {
	switch level {
	case wire.LevelWarning:
		return warnStyle
	case wire.LevelDebug:
		return debugStyle
	default:
		return infoStyle
	}
}

func (r *Renderer) style(s lipgloss.Style, text string) string {
	if r.noColor {
		return text
	}
	return s.Render(text)
}

// padType right-pads a message or frame type so payloads line up.
func padType(s string) string {
	if len(s) >= 10 {
		return s
	}
	return s + strings.Repeat(" ", 10-len(s))
}

// formatData renders a frame payload with deterministic key order.
func formatData(data map[string]any) string {
	if len(data) == 0 {
		return ""
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, data[k]))
	}
	return strings.Join(parts, " ")
}

// isTTY returns true if the writer is a TTY.
func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
