package watch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	appLog "icsbusy/internal/log"
	"icsbusy/internal/metrics"
)

// Evaluator is the batch operation the watcher repeats. *busy.Batch
// implements it.
type Evaluator interface {
	Evaluate(ctx context.Context, feeds map[string]string) map[string]bool
}

// Watcher periodically re-evaluates a fixed set of feeds, logs busy/free
// transitions and publishes the latest answer per feed as a gauge.
type Watcher struct {
	eval     Evaluator
	feeds    map[string]string
	schedule string
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu   sync.Mutex
	last map[string]bool
}

// New creates a Watcher. schedule is a standard 5-field cron spec.
func New(eval Evaluator, feeds map[string]string, schedule string, m *metrics.Metrics, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = appLog.Logger()
	}
	return &Watcher{
		eval:     eval,
		feeds:    feeds,
		schedule: schedule,
		metrics:  m,
		logger:   logger.With("component", "watch"),
		last:     make(map[string]bool),
	}
}

// Run evaluates once immediately, then on every schedule tick until ctx is
// canceled. Rounds never overlap; a slow round delays the next one.
func (w *Watcher) Run(ctx context.Context) error {
	cl := appLog.CronLogger(w.logger)
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(w.schedule, func() { w.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("watch: schedule %q: %w", w.schedule, err)
	}

	w.logger.Info("watcher starting", "feeds", len(w.feeds), "schedule", w.schedule)
	w.RunOnce(ctx)

	c.Start()
	<-ctx.Done()

	// Wait for an in-flight round to finish.
	<-c.Stop().Done()
	w.logger.Info("watcher stopped")
	return nil
}

// RunOnce performs one evaluation round and returns its results.
func (w *Watcher) RunOnce(ctx context.Context) map[string]bool {
	if ctx.Err() != nil {
		return nil
	}
	runID := uuid.NewString()
	start := time.Now()

	res := w.eval.Evaluate(ctx, w.feeds)

	w.mu.Lock()
	defer w.mu.Unlock()

	for label := range w.feeds {
		busy, ok := res[label]
		prev, known := w.last[label]
		switch {
		case !ok:
			if known {
				w.logger.Warn("feed state unknown", "run_id", runID, "label", label, "was_busy", prev)
			}
			delete(w.last, label)
			w.metrics.ForgetFeed(label)
			continue
		case !known || prev != busy:
			w.logger.Info("feed state changed", "run_id", runID, "label", label, "busy", busy)
		}
		w.last[label] = busy
		w.metrics.SetFeedBusy(label, busy)
	}
	if w.metrics != nil {
		w.metrics.WatchRuns.Inc()
	}

	w.logger.Debug("watch round done", "run_id", runID, "answered", len(res), "took", time.Since(start))
	return res
}

// Last returns a copy of the most recent known state per feed.
func (w *Watcher) Last() map[string]bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]bool, len(w.last))
	for k, v := range w.last {
		out[k] = v
	}
	return out
}
