// Package metrics exposes Prometheus collectors for sessions, the
// translation client and the image proxy.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
	OutcomeStale   = "stale"
)

type Metrics struct {
	registry *prometheus.Registry

	ConnectTotal    *prometheus.CounterVec
	PredictTotal    *prometheus.CounterVec
	PredictDuration prometheus.Histogram
	DebounceFired   prometheus.Counter
	DebounceDropped prometheus.Counter
	SessionsActive  prometheus.Gauge
	ImageTotal      *prometheus.CounterVec
	ImageDuration   prometheus.Histogram
}

// New registers every collector on a fresh registry together with the Go
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ConnectTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "legtrans_client_connect_total",
			Help: "Translation client connect attempts by outcome.",
		}, []string{"backend", "outcome"}),
		PredictTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "legtrans_predict_total",
			Help: "Translation calls by outcome; stale results were discarded.",
		}, []string{"outcome"}),
		PredictDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "legtrans_predict_duration_seconds",
			Help:    "Round trip of translation calls.",
			Buckets: prometheus.DefBuckets,
		}),
		DebounceFired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "legtrans_debounce_fired_total",
			Help: "Debounced translation actions that fired.",
		}),
		DebounceDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "legtrans_debounce_dropped_total",
			Help: "Debounced translation actions dropped because the client was not ready.",
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "legtrans_sessions_active",
			Help: "Live translation sessions.",
		}),
		ImageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "legtrans_image_requests_total",
			Help: "Image text extraction requests by outcome.",
		}, []string{"outcome"}),
		ImageDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "legtrans_image_duration_seconds",
			Help:    "Round trip of image text extraction.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30},
		}),
	}

	m.registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		m.ConnectTotal,
		m.PredictTotal,
		m.PredictDuration,
		m.DebounceFired,
		m.DebounceDropped,
		m.SessionsActive,
		m.ImageTotal,
		m.ImageDuration,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// The methods below accept a nil receiver so callers can run without
// metrics.

func (m *Metrics) Connect(backend string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	m.ConnectTotal.WithLabelValues(backend, outcome).Inc()
}

func (m *Metrics) Predict(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.PredictTotal.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.PredictDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) Debounce(fired bool) {
	if m == nil {
		return
	}
	if fired {
		m.DebounceFired.Inc()
	} else {
		m.DebounceDropped.Inc()
	}
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.SessionsActive.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.SessionsActive.Dec()
	}
}

func (m *Metrics) Image(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ImageTotal.WithLabelValues(outcome).Inc()
	m.ImageDuration.Observe(d.Seconds())
}
