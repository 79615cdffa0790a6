package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/framelink-io/framelink/cli/config"
	"github.com/framelink-io/framelink/cli/render"
	"github.com/framelink-io/framelink/client"
	"github.com/framelink-io/framelink/log"
	"github.com/framelink-io/framelink/metrics"
	"github.com/framelink-io/framelink/server"
	"github.com/framelink-io/framelink/wire"
)

// ListenCommand returns the listen command. It connects to a running
// server, prints the stream, and answers frames with the selected
// response handler.
func ListenCommand() *cli.Command {
	return &cli.Command{
		Name:  "listen",
		Usage: "Connect to a server and consume its frame stream",
		Flags: append(SharedFlags(),
			&cli.StringFlag{
				Name:  "handler",
				Usage: "Response handler: null, ack, echo, serial-text",
			},
		),
		Action: listenAction,
	}
}

// listenSettings is the merged result of config file and CLI flags.
type listenSettings struct {
	host    string
	port    int
	handler string
	quiet   bool
	noColor bool
}

func listenAction(c *cli.Context) error {
	settings, err := resolveListenSettings(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	handler, err := buildHandler(settings.handler)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	logger := log.NewLogger("listen")
	defer func() { _ = logger.Sync() }()

	addr := fmt.Sprintf("%s:%d", settings.host, settings.port)
	collector := metrics.NewCollector(addr, "")

	d, err := client.Dial(addr, handler, logger, collector)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if !settings.quiet {
		r := render.NewRenderer(settings.noColor)
		d.SetObserver(func(_ []byte, msg wire.Message) { r.Message(msg) })
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("listening", map[string]any{
		"addr":    addr,
		"handler": settings.handler,
	})

	if err := d.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	return nil
}

// resolveListenSettings merges the optional config file with CLI flags.
func resolveListenSettings(c *cli.Context) (*listenSettings, error) {
	fileCfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		fileCfg = loaded
	}

	settings := &listenSettings{
		host:    server.DefaultHost,
		port:    server.DefaultPort,
		handler: "null",
		quiet:   fileCfg.Client.Quiet,
		noColor: c.Bool("no-color"),
	}

	if fileCfg.Host != "" {
		settings.host = fileCfg.Host
	}
	if fileCfg.Port != 0 {
		settings.port = fileCfg.Port
	}
	if fileCfg.Client.Handler != "" {
		settings.handler = fileCfg.Client.Handler
	}
	if c.IsSet("host") {
		settings.host = c.String("host")
	}
	if c.IsSet("port") {
		settings.port = c.Int("port")
	}
	if c.IsSet("handler") {
		settings.handler = c.String("handler")
	}
	if c.IsSet("quiet") {
		settings.quiet = c.Bool("quiet")
	}

	return settings, nil
}

// buildHandler constructs the named response handler.
func buildHandler(name string) (client.Handler, error) {
	switch name {
	case "null", "":
		return client.NullHandler{}, nil
	case "ack":
		return client.AckHandler{}, nil
	case "echo":
		return client.EchoHandler{}, nil
	case "serial-text":
		return &client.SerialTextHandler{}, nil
	default:
		return nil, fmt.Errorf("unknown handler: %q (must be null, ack, echo, or serial-text)", name)
	}
}
