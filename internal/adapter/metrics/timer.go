package metrics

import "github.com/prometheus/client_golang/prometheus"

// TimerMetrics holds Prometheus metrics for timer mutations.
type TimerMetrics struct {
	Redemptions  *prometheus.CounterVec
	SecondsAdded *prometheus.CounterVec
}

// NewTimerMetrics creates and registers timer metrics on the given registry.
func NewTimerMetrics(reg prometheus.Registerer) *TimerMetrics {
	m := &TimerMetrics{
		Redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redemptions_total",
			Help:      "Total number of redemption events, by result.",
		}, []string{"result"}),
		SecondsAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timer_seconds_added_total",
			Help:      "Total number of seconds added to timers, by source.",
		}, []string{"source"}),
	}

	reg.MustRegister(m.Redemptions, m.SecondsAdded)
	return m
}
