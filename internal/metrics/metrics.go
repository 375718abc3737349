package metrics

import (
	"sync"
	"time"

	"github.com/oukeidos/splitfill/internal/tracker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Tracker Metrics
var (
	// HalfTransitionsTotal tracks applied transitions by target status
	HalfTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splitfill_half_transitions_total",
			Help: "Total half status transitions by target status",
		},
		[]string{"to"},
	)

	// ExpansionsTotal tracks finished expansion calls by result
	ExpansionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splitfill_expansions_total",
			Help: "Total finished expansion calls by result (done/error)",
		},
		[]string{"result"},
	)

	// ExpansionDuration tracks expansion latency in seconds
	ExpansionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "splitfill_expansion_duration_seconds",
			Help:    "Expansion call duration in seconds",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300, 600},
		},
		[]string{"result"},
	)

	// ExpansionsInFlight tracks halves currently expanding
	ExpansionsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "splitfill_expansions_in_flight",
			Help: "Number of halves currently in the expanding state",
		},
	)

	// RetriesTotal tracks manual retries of failed halves
	RetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "splitfill_retries_total",
			Help: "Total manual retries of failed halves",
		},
	)
)

// HTTP Metrics
var (
	// UploadsTotal tracks uploaded files by outcome
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splitfill_uploads_total",
			Help: "Total uploaded files by outcome (accepted/skipped)",
		},
		[]string{"outcome"},
	)

	// HTTPErrorsTotal tracks API errors by status code class
	HTTPErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splitfill_http_errors_total",
			Help: "Total API errors by status code",
		},
		[]string{"code"},
	)
)

type halfKey struct {
	item string
	part tracker.Part
}

// Observer turns tracker events into metric updates.
type Observer struct {
	mu      sync.Mutex
	started map[halfKey]time.Time
	now     func() time.Time
}

// NewObserver returns an Observer ready to be used as a tracker OnChange hook.
func NewObserver() *Observer {
	return &Observer{started: make(map[halfKey]time.Time), now: time.Now}
}

// Observe records one transition.
func (o *Observer) Observe(ev tracker.Event) {
	HalfTransitionsTotal.WithLabelValues(ev.To.String()).Inc()
	key := halfKey{item: ev.ItemID, part: ev.Part}

	switch ev.To {
	case tracker.StatusExpanding:
		if ev.From == tracker.StatusError {
			RetriesTotal.Inc()
		}
		ExpansionsInFlight.Inc()
		o.mu.Lock()
		o.started[key] = o.now()
		o.mu.Unlock()
	case tracker.StatusDone, tracker.StatusError:
		if ev.From != tracker.StatusExpanding {
			return
		}
		ExpansionsInFlight.Dec()
		result := ev.To.String()
		ExpansionsTotal.WithLabelValues(result).Inc()
		o.mu.Lock()
		start, ok := o.started[key]
		delete(o.started, key)
		o.mu.Unlock()
		if ok {
			ExpansionDuration.WithLabelValues(result).Observe(o.now().Sub(start).Seconds())
		}
	}
}

// Forget settles the metrics of a removed item. Its expanding halves will
// never report a result, so they leave the in-flight gauge here.
func (o *Observer) Forget(item tracker.WorkItem) {
	for _, part := range tracker.Parts {
		if item.Half(part).Status != tracker.StatusExpanding {
			continue
		}
		ExpansionsInFlight.Dec()
		o.mu.Lock()
		delete(o.started, halfKey{item: item.ID, part: part})
		o.mu.Unlock()
	}
}
