package wireguard

import (
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.zx2c4.com/wireguard/conn"

	"github.com/zhom/donutbrowser-sub002/pkg/metrics"
)

func TestCountingBindCountsTraffic(t *testing.T) {
	peer, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer peer.Close()

	b := newCountingBind("vpn-bind-test")
	fns, port, err := b.Open(0)
	require.NoError(t, err)
	require.Len(t, fns, 1)
	defer b.Close()

	ep, err := b.ParseEndpoint(peer.LocalAddr().String())
	require.NoError(t, err)

	payload := []byte("wg-outer-packet")
	require.NoError(t, b.Send([][]byte{payload}, ep))

	buf := make([]byte, 64)
	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, raddr, err := peer.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, int(port), raddr.Port)

	assert.Equal(t, uint64(len(payload)), b.BytesSent())
	assert.Equal(t, float64(len(payload)),
		testutil.ToFloat64(metrics.TunnelBytesSent.WithLabelValues("vpn-bind-test")))

	_, err = peer.WriteToUDP(payload, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: int(port)})
	require.NoError(t, err)

	pkts := [][]byte{make([]byte, 64)}
	sizes := make([]int, 1)
	eps := make([]conn.Endpoint, 1)
	got, err := fns[0](pkts, sizes, eps)
	require.NoError(t, err)
	assert.Equal(t, 1, got)
	assert.Equal(t, len(payload), sizes[0])

	assert.Equal(t, uint64(len(payload)), b.BytesReceived())
	assert.Equal(t, float64(len(payload)),
		testutil.ToFloat64(metrics.TunnelBytesReceived.WithLabelValues("vpn-bind-test")))
}

func TestCountingBindParseEndpointIPv4Only(t *testing.T) {
	b := newCountingBind("vpn-bind-test")

	ep, err := b.ParseEndpoint("192.0.2.7:51820")
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.7:51820", ep.DstToString())

	_, err = b.ParseEndpoint("[2001:db8::1]:51820")
	assert.Error(t, err)
}
