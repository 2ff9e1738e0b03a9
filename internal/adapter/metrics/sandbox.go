package metrics

import "github.com/prometheus/client_golang/prometheus"

// SandboxMetrics holds Prometheus metrics for server-side overlay rendering.
type SandboxMetrics struct {
	Builds         *prometheus.CounterVec
	Failures       *prometheus.CounterVec
	RenderDuration prometheus.Histogram
	ActiveSessions prometheus.Gauge
}

// NewSandboxMetrics creates and registers sandbox metrics on the given registry.
func NewSandboxMetrics(reg prometheus.Registerer) *SandboxMetrics {
	m := &SandboxMetrics{
		Builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sandbox",
			Name:      "builds_total",
			Help:      "Total number of sandbox instances built, by origin.",
		}, []string{"origin"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sandbox",
			Name:      "failures_total",
			Help:      "Total number of captured overlay failures, by kind.",
		}, []string{"kind"}),
		RenderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sandbox",
			Name:      "render_duration_seconds",
			Help:      "Duration of a single overlay paint in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sandbox",
			Name:      "active_sessions",
			Help:      "Number of live server-side render sessions.",
		}),
	}

	reg.MustRegister(m.Builds, m.Failures, m.RenderDuration, m.ActiveSessions)
	return m
}
