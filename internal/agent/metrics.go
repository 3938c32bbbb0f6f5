package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the agent's prometheus collectors.
// A nil *Metrics records nothing.
type Metrics struct {
	applies *prometheus.CounterVec
}

// NewMetrics creates the agent collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		applies: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "podfleet_agent_applies_total",
				Help: "Total number of manifests applied by the node agent",
			},
			[]string{"result"},
		),
	}
}

func (m *Metrics) observeApply(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.applies.WithLabelValues(result).Inc()
}
