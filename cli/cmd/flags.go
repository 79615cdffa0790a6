// Package cmd provides CLI commands for the framelink binary.
package cmd

import "github.com/urfave/cli/v2"

// Shared flags across serve and listen.
var (
	// ConfigFlag points at an optional framelink.yaml. Flags always
	// override file values.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to framelink.yaml config file",
	}

	// HostFlag overrides the endpoint host.
	HostFlag = &cli.StringFlag{
		Name:  "host",
		Usage: "Endpoint host (default 127.0.0.1)",
	}

	// PortFlag overrides the endpoint port.
	PortFlag = &cli.IntFlag{
		Name:  "port",
		Usage: "Endpoint port (default 50626)",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// QuietFlag suppresses stream and summary output.
	QuietFlag = &cli.BoolFlag{
		Name:    "quiet",
		Aliases: []string{"q"},
		Usage:   "Suppress rendered output",
	}
)

// SharedFlags returns the flags common to serve and listen.
func SharedFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		HostFlag,
		PortFlag,
		NoColorFlag,
		QuietFlag,
	}
}
