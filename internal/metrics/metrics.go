// Package metrics exposes service counters to Prometheus. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	eventsIngested *prometheus.CounterVec
	ingestFailures *prometheus.CounterVec
	mirrorPushes   *prometheus.CounterVec
	subscribers    prometheus.Gauge
	notifications  *prometheus.CounterVec
	evictions      prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry: registry,

		eventsIngested: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentryline_events_ingested_total",
				Help: "Events accepted by ingestion",
			},
			[]string{"event_type"},
		),
		ingestFailures: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentryline_ingest_failures_total",
				Help: "Rejected or failed ingestions by error kind",
			},
			[]string{"kind"},
		),
		mirrorPushes: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentryline_mirror_pushes_total",
				Help: "Zone mirror pushes by operation and result",
			},
			[]string{"op", "result"},
		),
		subscribers: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "sentryline_hub_subscribers",
				Help: "Currently connected broadcast subscribers",
			},
		),
		notifications: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentryline_hub_notifications_total",
				Help: "Published notifications by type",
			},
			[]string{"type"},
		),
		evictions: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "sentryline_hub_evictions_total",
				Help: "Subscribers dropped for a full buffer",
			},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) EventIngested(eventType string) {
	if m == nil {
		return
	}
	m.eventsIngested.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IngestFailed(kind string) {
	if m == nil {
		return
	}
	m.ingestFailures.WithLabelValues(kind).Inc()
}

// MirrorPush records one push outcome; result is "ok" or "error".
func (m *Metrics) MirrorPush(op, result string) {
	if m == nil {
		return
	}
	m.mirrorPushes.WithLabelValues(op, result).Inc()
}

func (m *Metrics) SubscribersChanged(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}

func (m *Metrics) NotificationPublished(typ string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(typ).Inc()
}

func (m *Metrics) SubscriberEvicted() {
	if m == nil {
		return
	}
	m.evictions.Inc()
}
