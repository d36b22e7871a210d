package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hifdh_quest"

// Metrics holds the Prometheus collectors of the game server.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	BuzzCounter       *prometheus.CounterVec
	RoundTransitions  *prometheus.CounterVec
	JudgmentCounter   *prometheus.CounterVec
	EventsPublished   *prometheus.CounterVec
	PublishDuration   *prometheus.HistogramVec
	ActiveConnections prometheus.Gauge
	Rejections        *prometheus.CounterVec

	registry *prometheus.Registry
}

// New registers the collectors on a dedicated registry so several
// instances can coexist, e.g. in tests.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		BuzzCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "buzzes_total",
				Help:      "Buzz submissions by outcome",
			},
			[]string{"outcome"},
		),
		RoundTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "round_transitions_total",
				Help:      "Round state transitions by target state and reason",
			},
			[]string{"state", "reason"},
		),
		JudgmentCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "judgments_total",
				Help:      "Admin judgments by correctness",
			},
			[]string{"correct"},
		),
		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Events published on the event channel by type and status",
			},
			[]string{"type", "status"},
		),
		PublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "event_publish_duration_seconds",
				Help:      "Time spent publishing one event",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"type"},
		),
		ActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_connections",
				Help:      "Open websocket connections",
			},
		),
		Rejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_rejected_total",
				Help:      "Client requests rejected by request type and code",
			},
			[]string{"request", "code"},
		),
	}
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordBuzz(outcome string) {
	if m == nil {
		return
	}
	m.BuzzCounter.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordTransition(state, reason string) {
	if m == nil {
		return
	}
	m.RoundTransitions.WithLabelValues(state, reason).Inc()
}

func (m *Metrics) RecordJudgment(correct bool) {
	if m == nil {
		return
	}
	label := "false"
	if correct {
		label = "true"
	}
	m.JudgmentCounter.WithLabelValues(label).Inc()
}

func (m *Metrics) RecordPublish(eventType string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.EventsPublished.WithLabelValues(eventType, status).Inc()
	m.PublishDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

func (m *Metrics) RecordRejection(request, code string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(request, code).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ActiveConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
}
