// Package metrics defines the prometheus collectors exported on /metrics.
// All recording methods are safe on a nil *Metrics so components can run
// without instrumentation in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

const namespace = "astro_bot"

// Metrics groups the bot collectors around a private registry.
type Metrics struct {
	registry *prometheus.Registry

	events        *prometheus.CounterVec
	eventDuration *prometheus.HistogramVec
	quota         *prometheus.CounterVec
	aiRequests    *prometheus.CounterVec
	aiDuration    prometheus.Histogram
	deliveries    *prometheus.CounterVec
	batchRuns     *prometheus.CounterVec
	logEntries    *prometheus.CounterVec
}

// New registers every collector, plus the Go and process collectors, on a
// fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Chat events handled, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		eventDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_duration_seconds",
			Help:      "Time spent handling one chat event.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		quota: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_decisions_total",
			Help:      "Usage limiter decisions, by feature and result.",
		}, []string{"feature", "result"}),
		aiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_requests_total",
			Help:      "AI completion calls, by outcome.",
		}, []string{"outcome"}),
		aiDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ai_request_duration_seconds",
			Help:      "AI completion latency including rate limiter wait.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16},
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Daily horoscope deliveries, by result.",
		}, []string{"result"}),
		batchRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_batches_total",
			Help:      "Delivery batch runs, by outcome.",
		}, []string{"outcome"}),
		logEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_entries_total",
			Help:      "Log entries written, by level.",
		}, []string{"level"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.events,
		m.eventDuration,
		m.quota,
		m.aiRequests,
		m.aiDuration,
		m.deliveries,
		m.batchRuns,
		m.logEntries,
	)

	return m
}

// Gatherer exposes the registry for the HTTP handler.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// ObserveEvent records one handled chat event.
func (m *Metrics) ObserveEvent(kind, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind, outcome).Inc()
	m.eventDuration.WithLabelValues(kind).Observe(took.Seconds())
}

// QuotaDecision records an allow/deny/refund for feature.
func (m *Metrics) QuotaDecision(feature, result string) {
	if m == nil {
		return
	}
	m.quota.WithLabelValues(feature, result).Inc()
}

// AIRequest records one completion call.
func (m *Metrics) AIRequest(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.aiRequests.WithLabelValues(outcome).Inc()
	m.aiDuration.Observe(took.Seconds())
}

// Delivery records the result of one profile in a batch.
func (m *Metrics) Delivery(result string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(result).Inc()
}

// BatchRun records one delivery batch.
func (m *Metrics) BatchRun(outcome string) {
	if m == nil {
		return
	}
	m.batchRuns.WithLabelValues(outcome).Inc()
}

// LogHook returns a logrus hook counting entries by level.
func (m *Metrics) LogHook() logrus.Hook {
	if m == nil {
		return nil
	}
	return &levelHook{counter: m.logEntries}
}

type levelHook struct {
	counter *prometheus.CounterVec
}

func (h *levelHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *levelHook) Fire(entry *logrus.Entry) error {
	h.counter.WithLabelValues(entry.Level.String()).Inc()
	return nil
}
