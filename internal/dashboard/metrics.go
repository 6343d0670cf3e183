package dashboard

import (
	"net/http"

	"github.com/kamilpajak/crestline/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records session activity. It is a session.ProgressEmitter.
type Metrics struct {
	registry    *prometheus.Registry
	runs        *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	busy        prometheus.Gauge
	images      prometheus.Counter
	rateLimited prometheus.Counter
}

// NewMetrics registers the collectors on reg, or on a fresh registry when
// reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crestline",
			Name:      "analysis_runs_total",
			Help:      "Analysis requests by mode and outcome.",
		}, []string{"mode", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "crestline",
			Name:      "analysis_duration_seconds",
			Help:      "Time from dispatch to response.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"mode"}),
		busy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "crestline",
			Name:      "analysis_in_flight",
			Help:      "1 while a request is in flight.",
		}),
		images: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crestline",
			Name:      "images_staged_total",
			Help:      "Images staged for analysis.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crestline",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
	}
	reg.MustRegister(m.runs, m.latency, m.busy, m.images, m.rateLimited)
	return m
}

// Emit updates counters from a session event.
func (m *Metrics) Emit(ev session.ProgressEvent) {
	switch ev.Type {
	case session.EventImage:
		m.images.Inc()
	case session.EventBusy:
		m.busy.Set(1)
	case session.EventSettled, session.EventError, session.EventStale:
		m.busy.Set(0)
		m.runs.WithLabelValues(string(ev.Mode), ev.Type).Inc()
		m.latency.WithLabelValues(string(ev.Mode)).Observe(float64(ev.ElapsedMs) / 1000)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
