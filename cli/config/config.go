package config

import (
	"fmt"
	"time"
)

// Config represents a framelink.yaml configuration file.
// All values are optional and act as defaults for serve and listen
// flags. CLI flags always override config values.
type Config struct {
	Host    string        `yaml:"host"`
	Port    int           `yaml:"port"`
	Output  OutputConfig  `yaml:"output"`
	Ack     AckConfig     `yaml:"ack"`
	Client  ClientConfig  `yaml:"client"`
	Adapter AdapterConfig `yaml:"adapter"`
}

// OutputConfig holds file-streaming defaults from the config file.
type OutputConfig struct {
	// FileStreaming selects the sink combination: off, on-with-socket,
	// or on-without-socket.
	FileStreaming string `yaml:"file_streaming"`
	// Path is the output file before rotation naming is applied.
	Path string `yaml:"path"`
	// Rotation is append, sequence, or timestamp.
	Rotation string `yaml:"rotation"`
}

// AckConfig holds acknowledgement defaults from the config file.
type AckConfig struct {
	// Required makes each frame publish wait for one reply line.
	Required bool `yaml:"required"`
	// Timeout bounds the wait; empty or zero waits indefinitely.
	Timeout Duration `yaml:"timeout,omitempty"`
}

// ClientConfig holds listen defaults from the config file.
type ClientConfig struct {
	// Handler names the response handler: null, ack, echo, or
	// serial-text.
	Handler string `yaml:"handler"`
	// Quiet suppresses the rendered stream on stdout.
	Quiet bool `yaml:"quiet"`
}

// AdapterConfig holds capture-notification defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
