package gatehttp

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts gatekeeper outcomes. A nil *Metrics records nothing.
type Metrics struct {
	// Decisions by kind.
	Decisions *prometheus.CounterVec
	// Errors are requests that failed with a server error.
	Errors prometheus.Counter
	// Duration of the gatekeeper's part of the request, excluding the
	// origin.
	Duration prometheus.Histogram
}

// NewMetrics creates the metrics and registers them with reg. A nil reg
// creates unregistered metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edgegate_decisions_total",
			Help: "Gatekeeper decisions by kind",
		}, []string{"decision"}),

		Errors: f.NewCounter(prometheus.CounterOpts{
			Name: "edgegate_errors_total",
			Help: "Requests that failed talking to the validator or identity provider",
		}),

		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "edgegate_request_duration_seconds",
			Help:    "Time taken to reach a gatekeeper decision",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

func (m *Metrics) incDecision(kind string) {
	if m != nil {
		m.Decisions.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) incError() {
	if m != nil {
		m.Errors.Inc()
	}
}

func (m *Metrics) observe(d time.Duration) {
	if m != nil {
		m.Duration.Observe(d.Seconds())
	}
}
