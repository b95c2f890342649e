package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TrackerMetrics implements the tracker's Metrics interface on a dedicated
// Prometheus registry.
type TrackerMetrics struct {
	service  string
	registry *prometheus.Registry

	subscriptionsActive prometheus.Gauge
	eventsTotal         *prometheus.CounterVec
	outcomesTotal       *prometheus.CounterVec
	sweepEvictionsTotal prometheus.Counter
}

func NewTrackerMetrics(service string) *TrackerMetrics {
	registry := prometheus.NewRegistry()

	subscriptionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "xtrack",
			Subsystem:   "tracker",
			Name:        "subscriptions_active",
			Help:        "Number of live per-resource event subscriptions.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	eventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xtrack",
			Subsystem: "tracker",
			Name:      "stream_events_total",
			Help:      "Total lifecycle events received, by event type.",
		},
		[]string{"service", "event"},
	)
	outcomesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "xtrack",
			Subsystem: "tracker",
			Name:      "terminal_outcomes_total",
			Help:      "Terminal stages recorded per resource, by stage.",
		},
		[]string{"service", "stage"},
	)
	sweepEvictionsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "xtrack",
			Subsystem:   "tracker",
			Name:        "sweep_evictions_total",
			Help:        "Entries removed by the background sweep.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)

	registry.MustRegister(subscriptionsActive, eventsTotal, outcomesTotal, sweepEvictionsTotal)

	return &TrackerMetrics{
		service:             service,
		registry:            registry,
		subscriptionsActive: subscriptionsActive,
		eventsTotal:         eventsTotal,
		outcomesTotal:       outcomesTotal,
		sweepEvictionsTotal: sweepEvictionsTotal,
	}
}

func (m *TrackerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *TrackerMetrics) SubscriptionOpened() {
	m.subscriptionsActive.Inc()
}

func (m *TrackerMetrics) SubscriptionClosed() {
	m.subscriptionsActive.Dec()
}

func (m *TrackerMetrics) EventReceived(eventType string) {
	m.eventsTotal.WithLabelValues(m.service, eventType).Inc()
}

func (m *TrackerMetrics) TerminalOutcome(stage string) {
	m.outcomesTotal.WithLabelValues(m.service, stage).Inc()
}

func (m *TrackerMetrics) SweepEvicted(count int) {
	m.sweepEvictionsTotal.Add(float64(count))
}
