package busy

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"icsbusy/internal/ics"
	appLog "icsbusy/internal/log"
	"icsbusy/internal/metrics"
)

// DefaultConcurrency is the number of feeds evaluated at once when Batch
// does not say otherwise.
const DefaultConcurrency = 10

// Checker is the single-feed operation a Batch fans out. *Evaluator
// implements it.
type Checker interface {
	IsBusy(ctx context.Context, url string) (bool, error)
}

// Batch evaluates many feeds with a bounded number in flight.
type Batch struct {
	Checker     Checker
	Concurrency int
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// NewBatch returns a Batch using DefaultConcurrency.
func NewBatch(c Checker) *Batch {
	return &Batch{Checker: c, Concurrency: DefaultConcurrency}
}

type job struct {
	label string
	url   string
}

type result struct {
	label string
	busy  bool
	err   error
}

// Evaluate checks every feed in feeds (label -> URL) and returns label ->
// busy for the feeds that answered. Failed feeds are logged and left out;
// they are neither retried nor reported as "not busy".
//
// At most Concurrency feeds are in flight. The returned map is written only
// by the calling goroutine.
func (b *Batch) Evaluate(ctx context.Context, feeds map[string]string) map[string]bool {
	out := make(map[string]bool, len(feeds))
	if len(feeds) == 0 {
		return out
	}
	b.Metrics.ObserveBatch(len(feeds))

	workers := b.Concurrency
	if workers <= 0 {
		workers = DefaultConcurrency
	}
	if workers > len(feeds) {
		workers = len(feeds)
	}

	jobs := make(chan job, len(feeds))
	for label, url := range feeds {
		jobs <- job{label: label, url: url}
	}
	close(jobs)

	results := make(chan result)
	var wg sync.WaitGroup

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				start := time.Now()
				busy, err := b.Checker.IsBusy(ctx, j.url)
				b.Metrics.ObserveCheck(busy, err, time.Since(start))
				results <- result{label: j.label, busy: busy, err: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	log := b.logger()
	for res := range results {
		if res.err != nil {
			log.Error("can't get data", "label", res.label, "url", ics.RedactURL(feeds[res.label]), "err", res.err)
			continue
		}
		out[res.label] = res.busy
	}

	log.Info("batch evaluated", "feeds", len(feeds), "answered", len(out), "concurrency", workers)
	return out
}

func (b *Batch) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return appLog.Logger()
}
