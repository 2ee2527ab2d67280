package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerServesCollectedMetrics(t *testing.T) {
	RelayConnectionsTotal.WithLabelValues("connected").Inc()
	TunnelBytesSent.WithLabelValues("vpn-metrics-test").Add(42)
	TunnelConnected.WithLabelValues("vpn-metrics-test").Set(1)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	out := string(body)
	assert.Contains(t, out, "relayd_relay_connections_total")
	assert.Contains(t, out, "relayd_tunnel_bytes_sent_total")
	assert.Contains(t, out, `vpn_id="vpn-metrics-test"`)
}

func TestRegisterOnFreshRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)

	RelayActiveConnections.Inc()
	defer RelayActiveConnections.Dec()

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "relayd_relay_active_connections")
}
