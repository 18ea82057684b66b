package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the authorization guard.
type Metrics struct {
	// Decisions by resource kind, caller role and outcome (grant/deny).
	Decisions *prometheus.CounterVec
}

// New creates a Metrics instance with all guard metrics registered.
func New() *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "curia_authz_decisions_total",
			Help: "Total authorization guard outcomes by resource kind, caller role and outcome",
		}, []string{"kind", "role", "outcome"}),
	}
}

// IncrementDecision records one guard outcome.
func (m *Metrics) IncrementDecision(kind, role, outcome string) {
	if m != nil {
		m.Decisions.WithLabelValues(kind, role, outcome).Inc()
	}
}
