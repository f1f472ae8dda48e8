package service

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "cadence"

// Metrics holds the Prometheus collectors for publish runs. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ItemsTotal          *prometheus.CounterVec
	PlatformCallSeconds *prometheus.HistogramVec
	RunsTotal           *prometheus.CounterVec
	RunDurationSeconds  prometheus.Histogram
	LastRunTimestamp    prometheus.Gauge
	LastRunDueItems     prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		ItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "items_processed_total",
				Help:      "Scheduled content items processed, by platform and outcome",
			},
			[]string{"platform", "outcome"},
		),
		PlatformCallSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "platform_call_duration_seconds",
				Help:      "Latency of platform publish calls",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
			},
			[]string{"platform", "outcome"},
		),
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "runs_total",
				Help:      "Publish runs, by result",
			},
			[]string{"result"},
		),
		RunDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of a whole publish run",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
			},
		),
		LastRunTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the last publish run finished",
			},
		),
		LastRunDueItems: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "last_run_due_items",
				Help:      "Due items selected by the last publish run",
			},
		),
	}
}

// ObservePlatformCall implements publisher.CallObserver.
func (m *Metrics) ObservePlatformCall(platform string, duration time.Duration, outcome string) {
	if m == nil {
		return
	}
	m.PlatformCallSeconds.WithLabelValues(platform, outcome).Observe(duration.Seconds())
}

func (m *Metrics) ObserveItem(platform, outcome string) {
	if m == nil {
		return
	}
	m.ItemsTotal.WithLabelValues(platform, outcome).Inc()
}

func (m *Metrics) ObserveRun(duration time.Duration, dueItems int, result string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(result).Inc()
	m.RunDurationSeconds.Observe(duration.Seconds())
	m.LastRunTimestamp.SetToCurrentTime()
	m.LastRunDueItems.Set(float64(dueItems))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
