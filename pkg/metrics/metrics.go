package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Relay metrics
	RelayConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayd_relay_connections_total",
			Help: "Total number of relay client connections by outcome",
		},
		[]string{"outcome"},
	)

	RelayActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relayd_relay_active_connections",
			Help: "Number of relay client connections currently open",
		},
	)

	RelayBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayd_relay_bytes_total",
			Help: "Bytes relayed between client and destination by direction",
		},
		[]string{"direction"},
	)

	// Tunnel metrics
	TunnelBytesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayd_tunnel_bytes_sent_total",
			Help: "Bytes sent through a tunnel, handshake traffic included",
		},
		[]string{"vpn_id"},
	)

	TunnelBytesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayd_tunnel_bytes_received_total",
			Help: "Bytes received through a tunnel, handshake traffic included",
		},
		[]string{"vpn_id"},
	)

	TunnelConnected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relayd_tunnel_connected",
			Help: "Whether a tunnel is connected (1) or not (0)",
		},
		[]string{"vpn_id"},
	)
)

// Register registers all metrics with the given registry.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		RelayConnectionsTotal,
		RelayActiveConnections,
		RelayBytesTotal,
		TunnelBytesSent,
		TunnelBytesReceived,
		TunnelConnected,
	)
}

func init() {
	Register(prometheus.DefaultRegisterer)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
