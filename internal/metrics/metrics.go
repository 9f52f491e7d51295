package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "leakwatch"

// Metrics holds the monitor's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	eventsProcessed prometheus.Counter
	eventDuration   prometheus.Histogram
	handlerErrors   *prometheus.CounterVec
	alerts          *prometheus.CounterVec
	linksDiscovered prometheus.Counter
	joinOutcomes    *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		eventsProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Inbound events run through the pipeline.",
		}),
		eventDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_duration_seconds",
			Help:      "Time spent processing one event, including join attempts.",
			Buckets:   prometheus.DefBuckets,
		}),
		handlerErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_errors_total",
			Help:      "Pipeline step failures isolated at the event boundary.",
		}, []string{"step"}),
		alerts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts written to the alert log.",
		}, []string{"kind"}),
		linksDiscovered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "links_discovered_total",
			Help:      "Invite links extracted from messages.",
		}),
		joinOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "join_outcomes_total",
			Help:      "Crawler results for discovered links, by outcome.",
		}, []string{"outcome"}),
	}
}

// EventProcessed counts one event and records how long it took.
func (m *Metrics) EventProcessed(d time.Duration) {
	if m == nil {
		return
	}
	m.eventsProcessed.Inc()
	m.eventDuration.Observe(d.Seconds())
}

// HandlerError counts a failed pipeline step.
func (m *Metrics) HandlerError(step string) {
	if m == nil {
		return
	}
	m.handlerErrors.WithLabelValues(step).Inc()
}

// Alert counts an alert that reached the alert log.
func (m *Metrics) Alert(kind string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(kind).Inc()
}

// LinkExtracted counts an invite link found in message text.
func (m *Metrics) LinkExtracted() {
	if m == nil {
		return
	}
	m.linksDiscovered.Inc()
}

// JoinOutcome counts a crawler result.
func (m *Metrics) JoinOutcome(outcome string) {
	if m == nil {
		return
	}
	m.joinOutcomes.WithLabelValues(outcome).Inc()
}
