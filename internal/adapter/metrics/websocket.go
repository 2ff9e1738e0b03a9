package metrics

import "github.com/prometheus/client_golang/prometheus"

// HubMetrics holds Prometheus metrics for the realtime hub.
type HubMetrics struct {
	ActiveConnections  prometheus.Gauge
	ActiveChannels     prometheus.Gauge
	ActiveSubscribers  prometheus.Gauge
	MessagesPublished  *prometheus.CounterVec
	SlowClientsEvicted prometheus.Counter
	RejectedJoins      *prometheus.CounterVec
}

// NewHubMetrics creates and registers hub metrics on the given registry.
func NewHubMetrics(reg prometheus.Registerer) *HubMetrics {
	m := &HubMetrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "active_connections",
			Help:      "Number of connected websocket viewers.",
		}),
		ActiveChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "active_channels",
			Help:      "Number of channels with at least one member on this instance.",
		}),
		ActiveSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "active_subscribers",
			Help:      "Number of in-process render sessions subscribed to a channel.",
		}),
		MessagesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "messages_published_total",
			Help:      "Total number of envelopes fanned out, by event.",
		}, []string{"event"}),
		SlowClientsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "slow_clients_evicted_total",
			Help:      "Total number of members dropped because their buffer was full.",
		}),
		RejectedJoins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "rejected_joins_total",
			Help:      "Total number of rejected joins, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(m.ActiveConnections, m.ActiveChannels, m.ActiveSubscribers, m.MessagesPublished, m.SlowClientsEvicted, m.RejectedJoins)
	return m
}
