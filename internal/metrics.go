package internal

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	Connections      prometheus.Gauge
	ConnectionsTotal prometheus.Counter
	Received         prometheus.Counter
	Deliveries       prometheus.Counter
	DeliveryFailures prometheus.Counter
	Rejected         prometheus.Counter
	ClusterEvents    *prometheus.CounterVec
}

// NewMetrics registers relay metrics on a registry of its own so several
// relays can live in one process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fleet_relay_connections",
			Help: "Currently connected sockets",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "fleet_relay_connections_total",
			Help: "Sockets accepted since start",
		}),
		Received: factory.NewCounter(prometheus.CounterOpts{
			Name: "fleet_relay_messages_received_total",
			Help: "Location updates received from clients",
		}),
		Deliveries: factory.NewCounter(prometheus.CounterOpts{
			Name: "fleet_relay_deliveries_total",
			Help: "Location updates queued to subscribers",
		}),
		DeliveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "fleet_relay_delivery_failures_total",
			Help: "Location updates dropped for a single subscriber",
		}),
		Rejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "fleet_relay_rejected_total",
			Help: "Location updates dropped by the payload filter",
		}),
		ClusterEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_relay_cluster_events_total",
			Help: "Events exchanged with other relay instances",
		}, []string{"type", "direction"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
