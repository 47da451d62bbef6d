package main

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/urfave/cli/v2"

	"icsbusy/internal/ics"
)

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Evaluate feeds once and print label<TAB>busy|free.",
		ArgsUsage: "[label=]URL|PATH ...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "at",
				Usage: `Evaluate at this time instead of now, e.g. "2021-11-22T10:00:00Z", "tomorrow 3pm" or "in 2 hours"`,
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			feeds := feedArgs(c.Args().Slice())
			if len(feeds) == 0 {
				feeds = cfg.FeedMap()
			}
			if len(feeds) == 0 {
				return cli.Exit("no feeds given and none configured", 2)
			}

			eval, batch := newBatch(cfg, nil, ics.WithLocalFiles())
			if at := c.String("at"); at != "" {
				t, err := parseWhen(at, time.Now())
				if err != nil {
					return cli.Exit(err.Error(), 2)
				}
				eval.Now = func() time.Time { return t }
			}

			ctx, cancel := signalContext(c.Context)
			defer cancel()

			res := batch.Evaluate(ctx, feeds)

			labels := make([]string, 0, len(res))
			for label := range res {
				labels = append(labels, label)
			}
			slices.Sort(labels)
			for _, label := range labels {
				state := "free"
				if res[label] {
					state = "busy"
				}
				fmt.Fprintf(c.App.Writer, "%s\t%s\n", label, state)
			}

			if missing := len(feeds) - len(res); missing > 0 {
				return cli.Exit(fmt.Sprintf("%d of %d feeds could not be read", missing, len(feeds)), 1)
			}
			return nil
		},
	}
}

// parseWhen reads an RFC 3339 timestamp or a natural-language time
// relative to base.
func parseWhen(text string, base time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(text)); err == nil {
		return t, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(text, base)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse --at %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("parse --at %q: no time found", text)
	}
	return r.Time, nil
}

// cutLabel splits "label=locator". The label part must not look like the
// start of a URL or path, so query strings containing '=' are left alone.
func cutLabel(arg string) (label, locator string, ok bool) {
	k, v, found := strings.Cut(arg, "=")
	if !found || k == "" || v == "" || strings.ContainsAny(k, ":/?.") {
		return "", "", false
	}
	return k, v, true
}
