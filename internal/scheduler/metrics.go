package scheduler

import (
	"time"

	"github.com/danpasecinic/podfleet/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the scheduler's prometheus collectors.
// A nil *Metrics records nothing.
type Metrics struct {
	results          *prometheus.CounterVec
	dispatchDuration prometheus.Histogram
	cleanupFailures  prometheus.Counter
}

// NewMetrics creates the scheduler collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		results: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "podfleet_schedule_results_total",
				Help: "Total number of scheduled resources by kind and outcome",
			},
			[]string{"kind", "status"},
		),
		dispatchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "podfleet_dispatch_duration_seconds",
				Help:    "Time spent applying a manifest on the target node",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
		cleanupFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "podfleet_cleanup_failures_total",
				Help: "Total number of failed removals from a previous node",
			},
		),
	}
}

func (m *Metrics) observeResult(res types.ScheduleResult) {
	if m == nil {
		return
	}
	m.results.WithLabelValues(string(res.Resource.Kind), string(res.Status.Phase)).Inc()
}

func (m *Metrics) observeDispatch(start time.Time) {
	if m == nil {
		return
	}
	m.dispatchDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) cleanupFailed() {
	if m == nil {
		return
	}
	m.cleanupFailures.Inc()
}
