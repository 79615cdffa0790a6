// Package rotate resolves the logical output file for a capture run.
//
// A run names its output file through one of three rotation modes:
//
//   - append: the configured path verbatim, opened for appending
//   - sequence: <stem>-<N><ext>, N strictly increasing across runs,
//     backed by a durable counter so restarts stay monotonic
//   - timestamp: <stem>-<run start, second precision><ext>
//
// Timestamp mode does not deduplicate: two runs starting within the same
// second against the same stem collide. This is an accepted edge case.
package rotate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Mode selects the rotation strategy.
type Mode string

// Rotation modes.
const (
	ModeAppend    Mode = "append"
	ModeSequence  Mode = "sequence"
	ModeTimestamp Mode = "timestamp"
)

// timestampSuffixLayout formats the run start for ModeTimestamp. Colons
// are replaced with dashes so the result is a portable filename.
const timestampSuffixLayout = "2006-01-02T15-04-05"

// ParseMode parses a rotation mode string.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "append", "":
		return ModeAppend, nil
	case "sequence":
		return ModeSequence, nil
	case "timestamp":
		return ModeTimestamp, nil
	default:
		return "", fmt.Errorf("invalid rotation mode: %q (must be append, sequence, or timestamp)", s)
	}
}

// RunContext describes one analyzer execution. It is created when a run
// begins, consulted once to resolve the output file, and never mutated
// afterwards.
type RunContext struct {
	// Start is the run start instant.
	Start time.Time
	// Mode is the rotation mode the path was resolved with.
	Mode Mode
	// Path is the resolved concrete output path.
	Path string
	// Counter is the sequence number claimed by this run.
	// -1 for modes other than sequence.
	Counter int
}

// Resolve computes the concrete output path for a run. For ModeSequence
// it claims the smallest number >= the durable counter whose file does
// not already exist on disk, then persists the successor so the sequence
// stays strictly increasing across process restarts.
func Resolve(basePath string, mode Mode, runStart time.Time, counter CounterStore) (*RunContext, error) {
	ctx := &RunContext{
		Start:   runStart,
		Mode:    mode,
		Counter: -1,
	}

	switch mode {
	case ModeAppend:
		ctx.Path = basePath

	case ModeSequence:
		if counter == nil {
			return nil, fmt.Errorf("sequence rotation requires a counter store")
		}
		n, err := counter.Load()
		if err != nil {
			return nil, fmt.Errorf("load rotation counter: %w", err)
		}
		stem, ext := splitStem(basePath)
		for {
			candidate := fmt.Sprintf("%s-%d%s", stem, n, ext)
			if _, err := os.Stat(candidate); os.IsNotExist(err) {
				ctx.Path = candidate
				ctx.Counter = n
				break
			} else if err != nil {
				return nil, fmt.Errorf("probe %s: %w", candidate, err)
			}
			n++
		}
		if err := counter.Store(n + 1); err != nil {
			return nil, fmt.Errorf("persist rotation counter: %w", err)
		}

	case ModeTimestamp:
		stem, ext := splitStem(basePath)
		ctx.Path = fmt.Sprintf("%s-%s%s", stem, runStart.UTC().Format(timestampSuffixLayout), ext)

	default:
		return nil, fmt.Errorf("invalid rotation mode: %q", mode)
	}

	return ctx, nil
}

// splitStem splits a path into stem and extension: "run.txt" -> ("run", ".txt").
func splitStem(path string) (string, string) {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext), ext
}
