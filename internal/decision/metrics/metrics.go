package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the decision lifecycle.
type Metrics struct {
	// Lifecycle operations by operation name and outcome
	Operations *prometheus.CounterVec

	// End-to-end signing latency, lock wait included
	SignLatency prometheus.Histogram
}

// New creates a new Metrics instance with all decision lifecycle metrics registered.
func New() *Metrics {
	return &Metrics{
		Operations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "curia_decision_operations_total",
			Help: "Total decision lifecycle operations by operation and outcome",
		}, []string{"operation", "outcome"}), // outcome: "ok", "denied", "invalid_state", "error"

		SignLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "curia_decision_sign_duration_seconds",
			Help:    "Duration of full decision signing including rendering and the commit transaction",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}

// IncrementOperation records one lifecycle operation outcome.
func (m *Metrics) IncrementOperation(operation, outcome string) {
	if m != nil {
		m.Operations.WithLabelValues(operation, outcome).Inc()
	}
}

// ObserveSignLatency records the total signing duration.
func (m *Metrics) ObserveSignLatency(d time.Duration) {
	if m != nil {
		m.SignLatency.Observe(d.Seconds())
	}
}
