package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"

	appLog "icsbusy/internal/log"
	"icsbusy/internal/metrics"
	"icsbusy/internal/watch"
	"icsbusy/internal/web"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve POST /by_url, GET /api/busy and /metrics.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "HTTP listen address (overrides config if set)"},
			&cli.BoolFlag{Name: "no-watch", Usage: "Do not run the background watcher for configured feeds"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			// CLI --listen overrides config file and environment.
			if l := c.String("listen"); l != "" {
				cfg.Listen = l
			}

			ctx, cancel := signalContext(c.Context)
			defer cancel()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			m := metrics.New(reg)

			eval, batch := newBatch(cfg, m)
			srv := web.NewServer(cfg, web.Options{
				Checker:  eval,
				Metrics:  m,
				Gatherer: reg,
				Logger:   appLog.Logger(),
			})

			watchDone := make(chan error, 1)
			if len(cfg.Feeds) > 0 && !c.Bool("no-watch") {
				w := watch.New(batch, cfg.FeedMap(), cfg.Refresh, m, appLog.Logger())
				go func() { watchDone <- w.Run(ctx) }()
			} else {
				watchDone <- nil
			}

			err = srv.ListenAndServe(ctx)
			// The server only returns early on a listen error; stop the
			// watcher in that case too.
			cancel()
			if werr := <-watchDone; err == nil {
				err = werr
			}
			return err
		},
	}
}
