package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for icsbusy_feed_checks_total.
const (
	OutcomeBusy  = "busy"
	OutcomeFree  = "free"
	OutcomeError = "error"
)

// Metrics holds the collectors exported on /metrics.
type Metrics struct {
	FeedChecks    *prometheus.CounterVec
	CheckDuration prometheus.Histogram
	BatchSize     prometheus.Histogram
	FeedBusy      *prometheus.GaugeVec
	WatchRuns     prometheus.Counter
}

// New registers all collectors on reg. Passing a fresh
// prometheus.NewRegistry keeps tests isolated from the global registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FeedChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "icsbusy_feed_checks_total",
			Help: "Feed evaluations by outcome (busy, free, error).",
		}, []string{"outcome"}),
		CheckDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "icsbusy_feed_check_duration_seconds",
			Help:    "Time to fetch and scan one feed until an answer was known.",
			Buckets: prometheus.DefBuckets,
		}),
		BatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "icsbusy_batch_feeds",
			Help:    "Number of feeds per batch evaluation.",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		}),
		FeedBusy: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "icsbusy_feed_busy",
			Help: "Last watcher result per configured feed (1 busy, 0 free). Absent when unknown.",
		}, []string{"label"}),
		WatchRuns: f.NewCounter(prometheus.CounterOpts{
			Name: "icsbusy_watch_runs_total",
			Help: "Completed watcher rounds.",
		}),
	}
}

// ObserveCheck records one feed evaluation. m may be nil.
func (m *Metrics) ObserveCheck(busy bool, err error, took time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeFree
	switch {
	case err != nil:
		outcome = OutcomeError
	case busy:
		outcome = OutcomeBusy
	}
	m.FeedChecks.WithLabelValues(outcome).Inc()
	m.CheckDuration.Observe(took.Seconds())
}

// ObserveBatch records the size of one batch. m may be nil.
func (m *Metrics) ObserveBatch(n int) {
	if m == nil {
		return
	}
	m.BatchSize.Observe(float64(n))
}

// SetFeedBusy publishes the watcher's view of one feed. m may be nil.
func (m *Metrics) SetFeedBusy(label string, busy bool) {
	if m == nil {
		return
	}
	v := 0.0
	if busy {
		v = 1
	}
	m.FeedBusy.WithLabelValues(label).Set(v)
}

// ForgetFeed removes a feed's gauge so stale answers are not exported.
func (m *Metrics) ForgetFeed(label string) {
	if m == nil {
		return
	}
	m.FeedBusy.DeleteLabelValues(label)
}
