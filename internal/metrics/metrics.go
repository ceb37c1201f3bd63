// Package metrics exposes preload counters and gauges to Prometheus.
// All methods are safe on a nil *Metrics so components can run without a registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tribute"

type Metrics struct {
	assets      *prometheus.CounterVec
	validations *prometheus.CounterVec
	bytes       prometheus.Counter
	session     prometheus.Histogram
	percent     prometheus.Gauge
	revealed    prometheus.Gauge
	wsClients   prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		assets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preload_assets_total",
			Help:      "Settled preload pipelines by media kind and outcome (ready|fallback).",
		}, []string{"kind", "status"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preload_validations_total",
			Help:      "Validation results by media kind.",
		}, []string{"kind", "result"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preload_bytes_total",
			Help:      "Bytes retained in the media cache.",
		}),
		session: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "preload_session_seconds",
			Help:      "Wall time from preload start to the terminal report.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 45, 90},
		}),
		percent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "preload_percent",
			Help:      "Last reported aggregate preload percent.",
		}),
		revealed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "page_revealed",
			Help:      "1 once the readiness gate has revealed the page.",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "progress_ws_clients",
			Help:      "Connected progress websocket clients.",
		}),
	}
	reg.MustRegister(m.assets, m.validations, m.bytes, m.session, m.percent, m.revealed, m.wsClients)
	return m
}

// ObserveOutcome records one settled pipeline.
func (m *Metrics) ObserveOutcome(kind, status, validation string, n int64) {
	if m == nil {
		return
	}
	m.assets.WithLabelValues(kind, status).Inc()
	if validation != "" {
		m.validations.WithLabelValues(kind, validation).Inc()
	}
	if n > 0 {
		m.bytes.Add(float64(n))
	}
}

func (m *Metrics) SetPercent(p int) {
	if m == nil {
		return
	}
	m.percent.Set(float64(p))
}

func (m *Metrics) ObserveSession(d time.Duration) {
	if m == nil {
		return
	}
	m.session.Observe(d.Seconds())
}

func (m *Metrics) SetRevealed() {
	if m == nil {
		return
	}
	m.revealed.Set(1)
}

func (m *Metrics) AddWSClients(delta int) {
	if m == nil {
		return
	}
	m.wsClients.Add(float64(delta))
}

// Handler serves the gatherer in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
