// Package server implements the broadcast side of the framelink
// transport: it accepts at most one inbound peer, pushes encoded
// messages to the active sinks, and optionally performs a synchronous
// acknowledgement wait per published frame.
package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/framelink-io/framelink/rotate"
)

// Default endpoint, matching what existing peers expect. The CLI falls
// back to these when host/port are unset.
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 50626
)

// Configuration errors, all fatal at startup before any I/O begins.
var (
	// ErrNoSink indicates neither the socket nor the file sink is enabled.
	ErrNoSink = errors.New("no sink enabled: enable the socket, the file, or both")
	// ErrMissingFilePath indicates file streaming without an output path.
	ErrMissingFilePath = errors.New("file streaming enabled without an output path")
	// ErrAlreadyStarted indicates a second Start call.
	ErrAlreadyStarted = errors.New("server already started")
	// ErrNotStarted indicates Publish before Start.
	ErrNotStarted = errors.New("server not started")
	// ErrClosed indicates use after Close.
	ErrClosed = errors.New("server closed")
)

// StreamMode is the user-facing file-streaming setting.
type StreamMode string

// File-streaming modes.
const (
	// StreamOff disables the file sink; the socket carries everything.
	StreamOff StreamMode = "off"
	// StreamWithSocket enables the file sink alongside the socket.
	StreamWithSocket StreamMode = "on-with-socket"
	// StreamWithoutSocket enables the file sink and disables the socket.
	StreamWithoutSocket StreamMode = "on-without-socket"
)

// ParseStreamMode parses a file-streaming mode string.
func ParseStreamMode(s string) (StreamMode, error) {
	switch strings.ToLower(s) {
	case "off", "":
		return StreamOff, nil
	case "on-with-socket":
		return StreamWithSocket, nil
	case "on-without-socket":
		return StreamWithoutSocket, nil
	default:
		return "", fmt.Errorf("invalid file-streaming mode: %q (must be off, on-with-socket, or on-without-socket)", s)
	}
}

// Config configures a Server. The zero value is not usable: apply the
// stream mode (or set the sink booleans directly) and validate first.
type Config struct {
	// Host is the listen address. Defaults to DefaultHost.
	Host string
	// Port is the listen port. Zero binds an OS-assigned port; the CLI
	// defaults to DefaultPort before constructing the config.
	Port int

	// SocketEnabled enables the socket sink and the accept loop.
	SocketEnabled bool
	// FileEnabled enables the file sink.
	FileEnabled bool
	// FilePath is the logical output path before rotation resolution.
	FilePath string
	// Rotation names the output file across runs.
	Rotation rotate.Mode
	// Counter backs sequence rotation. When nil and Rotation is
	// sequence, a file counter is created next to the output stem.
	Counter rotate.CounterStore

	// AckRequired makes every Frame publish block until one reply line
	// is read from the connected peer. With no peer connected, no wait
	// occurs regardless of this flag.
	AckRequired bool
	// AckTimeout bounds the ack-wait. Zero waits indefinitely. A
	// timeout expiry is recoverable: the peer stays connected and the
	// publish returns.
	AckTimeout time.Duration
}

// ApplyStreamMode sets the sink booleans from a user-facing mode.
func (c *Config) ApplyStreamMode(mode StreamMode) {
	switch mode {
	case StreamOff:
		c.SocketEnabled = true
		c.FileEnabled = false
	case StreamWithSocket:
		c.SocketEnabled = true
		c.FileEnabled = true
	case StreamWithoutSocket:
		c.SocketEnabled = false
		c.FileEnabled = true
	}
}

// Validate checks the configuration. Called by New; exported so the CLI
// can fail fast before constructing anything.
func (c *Config) Validate() error {
	if !c.SocketEnabled && !c.FileEnabled {
		return ErrNoSink
	}
	if c.FileEnabled && c.FilePath == "" {
		return ErrMissingFilePath
	}
	if c.AckTimeout < 0 {
		return fmt.Errorf("negative ack timeout: %v", c.AckTimeout)
	}
	return nil
}

// addr returns the listen address with the host default applied.
func (c *Config) addr() string {
	host := c.Host
	if host == "" {
		host = DefaultHost
	}
	return fmt.Sprintf("%s:%d", host, c.Port)
}
