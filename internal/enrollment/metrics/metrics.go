package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the enrollment module.
type Metrics struct {
	// Attempt outcomes by result and fetch strategy
	AttemptOutcome *prometheus.CounterVec

	// End-to-end attempt latency
	AttemptLatency prometheus.Histogram
}

// New creates a new Metrics instance with all enrollment metrics registered.
func New() *Metrics {
	return &Metrics{
		AttemptOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "enrolld_attempt_outcomes_total",
			Help: "Total enrollment attempt outcomes by result and token fetch strategy",
		}, []string{"result", "strategy"}), // result: "registered", "not_registered"

		AttemptLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "enrolld_attempt_duration_seconds",
			Help:    "Duration of full enrollment attempts including the registration call",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// ObserveAttempt records one finished attempt.
func (m *Metrics) ObserveAttempt(registered bool, strategy string, elapsed time.Duration) {
	result := "not_registered"
	if registered {
		result = "registered"
	}
	m.AttemptOutcome.WithLabelValues(result, strategy).Inc()
	m.AttemptLatency.Observe(elapsed.Seconds())
}
