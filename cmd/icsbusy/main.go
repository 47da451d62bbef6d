package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"icsbusy/internal/busy"
	"icsbusy/internal/config"
	"icsbusy/internal/ics"
	appLog "icsbusy/internal/log"
	"icsbusy/internal/metrics"
	"icsbusy/internal/watch"
)

const version = "0.1.0"

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		appLog.Error("icsbusy failed", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "icsbusy",
		Usage:   "Tell whether calendar feeds have an event happening right now.",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file (created with defaults if missing)",
				EnvVars: []string{"ICSBUSY_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			checkCommand(),
			watchCommand(),
		},
	}
}

// loadConfig reads the config file, applies the environment and sets up
// logging from the result.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", path, err)
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	appLog.Init(os.Stderr, appLog.ParseLevel(cfg.LogLevel), appLog.ParseFormat(cfg.LogFormat))
	appLog.Info("effective config",
		"config_path", path,
		"listen", cfg.Listen,
		"concurrency", cfg.Concurrency,
		"fetch_timeout", cfg.FetchTimeout,
		"log_level", cfg.LogLevel,
		"refresh", cfg.Refresh,
		"feed_count", len(cfg.Feeds),
	)
	return cfg, nil
}

func newBatch(cfg *config.Config, m *metrics.Metrics, opts ...ics.FetcherOption) (*busy.Evaluator, *busy.Batch) {
	opts = append([]ics.FetcherOption{
		ics.WithTimeout(cfg.FetchTimeout),
		ics.WithUserAgent(cfg.UserAgent),
	}, opts...)
	eval := busy.NewEvaluator(ics.NewFetcher(opts...))
	batch := busy.NewBatch(eval)
	batch.Concurrency = cfg.Concurrency
	batch.Metrics = m
	return eval, batch
}

// signalContext is canceled on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Re-evaluate the configured feeds on the refresh schedule and log changes.",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if len(cfg.Feeds) == 0 {
				return errors.New("no feeds configured")
			}

			ctx, cancel := signalContext(c.Context)
			defer cancel()

			m := metrics.New(prometheus.DefaultRegisterer)
			_, batch := newBatch(cfg, m)
			return watch.New(batch, cfg.FeedMap(), cfg.Refresh, m, appLog.Logger()).Run(ctx)
		},
	}
}

// feedArgs turns CLI arguments into label -> locator. "label=url" sets an
// explicit label; otherwise the argument is its own label.
func feedArgs(args []string) map[string]string {
	feeds := make(map[string]string, len(args))
	for i, a := range args {
		label, loc := a, a
		if k, v, ok := cutLabel(a); ok {
			label, loc = k, v
		}
		if _, dup := feeds[label]; dup {
			label = label + "#" + strconv.Itoa(i)
		}
		feeds[label] = loc
	}
	return feeds
}
