package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/framelink-io/framelink/adapter"
	"github.com/framelink-io/framelink/adapter/redis"
	"github.com/framelink-io/framelink/adapter/webhook"
	"github.com/framelink-io/framelink/cli/config"
	"github.com/framelink-io/framelink/cli/render"
	"github.com/framelink-io/framelink/log"
	"github.com/framelink-io/framelink/metrics"
	"github.com/framelink-io/framelink/rotate"
	"github.com/framelink-io/framelink/server"
	"github.com/framelink-io/framelink/wire"
)

// ServeCommand returns the serve command. It reads wire messages from
// stdin, one JSON object per line, and broadcasts them to the enabled
// sinks until stdin ends or a signal arrives.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Broadcast analyzer frames from stdin to connected consumers",
		Flags: append(SharedFlags(),
			&cli.StringFlag{
				Name:  "file-streaming",
				Usage: "File sink mode: off, on-with-socket, on-without-socket",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file path (required when file streaming is on)",
			},
			&cli.StringFlag{
				Name:  "rotation",
				Usage: "Output file rotation: append, sequence, timestamp",
			},
			&cli.BoolFlag{
				Name:  "ack",
				Usage: "Wait for one reply line per frame from the connected consumer",
			},
			&cli.DurationFlag{
				Name:  "ack-timeout",
				Usage: "Bound each ack wait (0 waits indefinitely)",
			},
		),
		Action: serveAction,
	}
}

// serveSettings is the merged result of config file and CLI flags.
type serveSettings struct {
	host        string
	port        int
	streamMode  server.StreamMode
	outputPath  string
	rotation    rotate.Mode
	ackRequired bool
	ackTimeout  time.Duration
	quiet       bool
	noColor     bool
	adapter     config.AdapterConfig
}

func serveAction(c *cli.Context) error {
	settings, err := resolveServeSettings(c)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	cfg := server.Config{
		Host:        settings.host,
		Port:        settings.port,
		FilePath:    settings.outputPath,
		Rotation:    settings.rotation,
		AckRequired: settings.ackRequired,
		AckTimeout:  settings.ackTimeout,
	}
	cfg.ApplyStreamMode(settings.streamMode)

	logger := log.NewLogger("serve")
	defer func() { _ = logger.Sync() }()

	collector := metrics.NewCollector(
		fmt.Sprintf("%s:%d", settings.host, settings.port),
		string(settings.rotation),
	)

	srv, err := server.New(cfg, logger, collector)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	notifier, err := buildAdapter(settings.adapter)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if notifier != nil {
		defer func() { _ = notifier.Close() }()
	}

	startTime := time.Now()
	if err := srv.Start(); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer func() { _ = srv.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("serving", map[string]any{
		"addr":     srv.Addr(),
		"ack":      settings.ackRequired,
		"rotation": string(settings.rotation),
	})

	if err := pumpStdin(ctx, srv, logger, collector); err != nil {
		return err
	}

	outputPath := settings.outputPath
	if run := srv.RunContext(); run != nil {
		outputPath = run.Path
	}
	if err := srv.Close(); err != nil {
		logger.Warn("close failed", map[string]any{"error": err.Error()})
	}

	snap := collector.Snapshot()
	if !settings.quiet {
		render.NewRenderer(settings.noColor).Summary(snap)
	}

	if notifier != nil {
		if err := publishCaptureEvent(notifier, startTime, string(settings.rotation), outputPath, snap); err != nil {
			logger.Warn("capture notification failed", map[string]any{"error": err.Error()})
		}
	}

	return nil
}

// pumpStdin publishes each stdin line until EOF or cancellation. Lines
// that do not decode are skipped so a corrupt line in a piped capture
// never kills the whole session.
func pumpStdin(ctx context.Context, srv *server.Server, logger *log.Logger, collector *metrics.Collector) error {
	type readResult struct {
		line []byte
		err  error
	}
	lines := make(chan readResult)
	go func() {
		br := bufio.NewReader(os.Stdin)
		for {
			line, err := br.ReadBytes('\n')
			if len(line) > 0 {
				lines <- readResult{line: line}
			}
			if err != nil {
				lines <- readResult{err: err}
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("interrupted", map[string]any{})
			return nil
		case res := <-lines:
			if res.err != nil {
				if !errors.Is(res.err, io.EOF) {
					logger.Warn("stdin read failed", map[string]any{"error": res.err.Error()})
				}
				return nil
			}

			msg, err := wire.DecodeLine(res.line)
			if err != nil {
				collector.IncDecodeError()
				logger.Warn("undecodable input line", map[string]any{"error": err.Error()})
				continue
			}
			if err := srv.Publish(msg); err != nil {
				return fmt.Errorf("publish failed: %w", err)
			}
		}
	}
}

// resolveServeSettings merges the optional config file with CLI flags.
// Flags win over file values, file values win over defaults.
func resolveServeSettings(c *cli.Context) (*serveSettings, error) {
	fileCfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		fileCfg = loaded
	}

	settings := &serveSettings{
		host:        server.DefaultHost,
		port:        server.DefaultPort,
		streamMode:  server.StreamOff,
		rotation:    rotate.ModeAppend,
		outputPath:  fileCfg.Output.Path,
		ackRequired: fileCfg.Ack.Required,
		ackTimeout:  fileCfg.Ack.Timeout.Duration,
		quiet:       fileCfg.Client.Quiet,
		noColor:     c.Bool("no-color"),
		adapter:     fileCfg.Adapter,
	}

	if fileCfg.Host != "" {
		settings.host = fileCfg.Host
	}
	if fileCfg.Port != 0 {
		settings.port = fileCfg.Port
	}
	if c.IsSet("host") {
		settings.host = c.String("host")
	}
	if c.IsSet("port") {
		settings.port = c.Int("port")
	}

	modeStr := fileCfg.Output.FileStreaming
	if c.IsSet("file-streaming") {
		modeStr = c.String("file-streaming")
	}
	mode, err := server.ParseStreamMode(modeStr)
	if err != nil {
		return nil, err
	}
	settings.streamMode = mode

	rotationStr := fileCfg.Output.Rotation
	if c.IsSet("rotation") {
		rotationStr = c.String("rotation")
	}
	rotation, err := rotate.ParseMode(rotationStr)
	if err != nil {
		return nil, err
	}
	settings.rotation = rotation

	if c.IsSet("output") {
		settings.outputPath = c.String("output")
	}
	if c.IsSet("ack") {
		settings.ackRequired = c.Bool("ack")
	}
	if c.IsSet("ack-timeout") {
		settings.ackTimeout = c.Duration("ack-timeout")
	}
	if c.IsSet("quiet") {
		settings.quiet = c.Bool("quiet")
	}

	return settings, nil
}

// buildAdapter constructs the configured capture-notification adapter.
// An empty type means notifications are off.
func buildAdapter(cfg config.AdapterConfig) (adapter.Adapter, error) {
	retries := func(def int) int {
		if cfg.Retries != nil {
			return *cfg.Retries
		}
		return def
	}

	switch cfg.Type {
	case "":
		return nil, nil
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Timeout: cfg.Timeout.Duration,
			Retries: retries(webhook.DefaultRetries),
		})
	case "redis":
		return redis.New(redis.Config{
			URL:     cfg.URL,
			Channel: cfg.Channel,
			Timeout: cfg.Timeout.Duration,
			Retries: retries(redis.DefaultRetries),
		})
	default:
		return nil, fmt.Errorf("unknown adapter type: %q (must be webhook or redis)", cfg.Type)
	}
}

// publishCaptureEvent reports the finished run to the configured adapter.
func publishCaptureEvent(notifier adapter.Adapter, startTime time.Time, rotation, outputPath string, snap metrics.Snapshot) error {
	event := &adapter.CaptureCompletedEvent{
		EventType:     "capture_completed",
		RunStart:      wire.NewTimestamp(startTime).String(),
		DurationMs:    time.Since(startTime).Milliseconds(),
		OutputPath:    outputPath,
		Rotation:      rotation,
		Frames:        snap.FramesPublished,
		Notifications: snap.NotificationsPublished,
		AcksReceived:  snap.AcksReceived,
		MissedReplies: snap.MissedReplies,
		AckTimeouts:   snap.AckTimeouts,
		SinkFailures:  snap.SinkFailures,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return notifier.Publish(ctx, event)
}
