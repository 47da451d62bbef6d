package busy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"icsbusy/internal/ics"
	appLog "icsbusy/internal/log"
)

// ErrTransport marks failures to open or read a feed. A feed that could
// not be read is "unknown", never "not busy"; check with errors.Is.
var ErrTransport = errors.New("feed transport failed")

// Source turns a feed locator into a byte stream. *ics.Fetcher is the
// production implementation.
type Source interface {
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// Evaluator answers whether a calendar feed has an event spanning now.
type Evaluator struct {
	Source Source
	// Now returns the instant to test. Defaults to time.Now.
	Now func() time.Time
	// Logger receives per-feed diagnostics. Defaults to the global logger.
	Logger *slog.Logger
}

// NewEvaluator returns an Evaluator reading feeds from src.
func NewEvaluator(src Source) *Evaluator {
	return &Evaluator{Source: src}
}

func (e *Evaluator) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Evaluator) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return appLog.Logger()
}

// IsBusy fetches url and scans it. Transport failures are returned wrapped
// in ErrTransport.
func (e *Evaluator) IsBusy(ctx context.Context, url string) (bool, error) {
	if e.Source == nil {
		return false, fmt.Errorf("%w: no source configured", ErrTransport)
	}
	log := e.logger().With("url", ics.RedactURL(url))

	body, err := e.Source.Open(ctx, url)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	// Closing before EOF is how an early answer stops the download.
	defer body.Close()

	busy, err := e.scan(ctx, body, log)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false, err
		}
		return false, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return busy, nil
}

// Scan reads an ICS stream line by line and reports whether any complete
// event contains the current instant. It stops reading at the first match.
func (e *Evaluator) Scan(ctx context.Context, r io.Reader) (bool, error) {
	return e.scan(ctx, r, e.logger())
}

func (e *Evaluator) scan(ctx context.Context, r io.Reader, log *slog.Logger) (bool, error) {
	now := e.now()
	parser := ics.NewParser()
	skipped := 0

	defer func() {
		st := parser.Stats()
		log.Debug("feed scanned",
			"lines", st.Lines,
			"lines_skipped", skipped,
			"events_opened", st.EventsOpened,
			"events_found", st.EventsEmitted,
			"events_dropped", st.EventsDropped,
			"zones_declared", st.ZonesDeclared,
			"zone_errors", st.ZoneErrors,
			"timezone", zoneName(parser),
		)
	}()

	lines := ics.Lines(r, ics.OnLongLine(func(size int) {
		skipped++
		log.Debug("over-long line skipped", "bytes", size, "after_line", parser.Stats().Lines)
	}))
	for raw, err := range lines {
		if err != nil {
			return false, err
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}

		ev, ok := parser.ProcessLine(ics.ParseLine(raw))
		if !ok {
			continue
		}
		local := now.In(ev.Location)
		if ev.Contains(local) {
			log.Info("busy event found",
				"event", ev.Name,
				"timezone", ev.TimeZone(),
				"start", ev.Start.Format(time.RFC3339),
				"end", ev.End.Format(time.RFC3339),
				"now", local.Format(time.RFC3339),
			)
			return true, nil
		}
	}

	if parser.Stats().ZonesDeclared == 0 {
		log.Debug("feed declares no X-WR-TIMEZONE; its events cannot be evaluated")
	}
	return false, nil
}

func zoneName(p *ics.Parser) string {
	if tz := p.TimeZone(); tz != nil {
		return tz.String()
	}
	return ""
}
