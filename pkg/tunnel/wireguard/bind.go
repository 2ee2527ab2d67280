package wireguard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"syscall"

	"golang.zx2c4.com/wireguard/conn"

	"github.com/zhom/donutbrowser-sub002/pkg/metrics"
)

// countingBind is an IPv4-only UDP bind for the WireGuard device that
// counts every byte sent and received, handshake and data plane alike.
// Endpoint resolution only looks up A records because the outer transport
// is plain IPv4 UDP.
type countingBind struct {
	vpnID string

	mu   sync.Mutex
	udp4 *net.UDPConn
	port uint16

	sent     atomic.Uint64
	received atomic.Uint64
}

func newCountingBind(vpnID string) *countingBind {
	return &countingBind{vpnID: vpnID}
}

func (b *countingBind) Open(uport uint16) ([]conn.ReceiveFunc, uint16, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: int(uport)})
	if err != nil {
		return nil, 0, err
	}
	b.udp4 = c
	if ua, ok := c.LocalAddr().(*net.UDPAddr); ok {
		b.port = uint16(ua.Port)
	}

	recv := func(packets [][]byte, sizes []int, eps []conn.Endpoint) (int, error) {
		if len(packets) == 0 || len(sizes) == 0 || len(eps) == 0 {
			return 0, nil
		}
		n, raddr, err := b.udp4.ReadFromUDP(packets[0])
		if err != nil {
			return 0, err
		}
		b.received.Add(uint64(n))
		metrics.TunnelBytesReceived.WithLabelValues(b.vpnID).Add(float64(n))
		sizes[0] = n
		ap, _ := netip.ParseAddrPort(raddr.String())
		eps[0] = &conn.StdNetEndpoint{AddrPort: ap}
		return 1, nil
	}

	return []conn.ReceiveFunc{recv}, b.port, nil
}

func (b *countingBind) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.udp4 != nil {
		err := b.udp4.Close()
		b.udp4 = nil
		return err
	}
	return nil
}

func (b *countingBind) SetMark(_ uint32) error { return nil }

func (b *countingBind) Send(buffers [][]byte, ep conn.Endpoint) error {
	b.mu.Lock()
	c := b.udp4
	b.mu.Unlock()
	if c == nil {
		return errors.New("bind closed")
	}
	sne, ok := ep.(*conn.StdNetEndpoint)
	if !ok {
		return errors.New("endpoint type not supported")
	}
	ap := sne.AddrPort
	raddr := &net.UDPAddr{IP: ap.Addr().AsSlice(), Port: int(ap.Port())}
	for _, buf := range buffers {
		if len(buf) == 0 {
			continue
		}
		n, err := c.WriteToUDP(buf, raddr)
		if err != nil {
			return err
		}
		b.sent.Add(uint64(n))
		metrics.TunnelBytesSent.WithLabelValues(b.vpnID).Add(float64(n))
	}
	return nil
}

func (b *countingBind) ParseEndpoint(s string) (conn.Endpoint, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return nil, err
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			ap, _ := netip.ParseAddrPort(net.JoinHostPort(ip4.String(), portStr))
			return &conn.StdNetEndpoint{AddrPort: ap}, nil
		}
		return nil, syscall.EAFNOSUPPORT
	}
	ips, err := net.DefaultResolver.LookupIP(context.Background(), "ip4", host)
	if err != nil || len(ips) == 0 {
		return nil, fmt.Errorf("resolve v4 failed for %s: %w", host, err)
	}
	ip4 := ips[0].To4()
	if ip4 == nil {
		return nil, syscall.EAFNOSUPPORT
	}
	ap, _ := netip.ParseAddrPort(net.JoinHostPort(ip4.String(), portStr))
	return &conn.StdNetEndpoint{AddrPort: ap}, nil
}

func (b *countingBind) BatchSize() int { return 1 }

// BytesSent returns the bytes written to the peer so far.
func (b *countingBind) BytesSent() uint64 { return b.sent.Load() }

// BytesReceived returns the bytes read from the peer so far.
func (b *countingBind) BytesReceived() uint64 { return b.received.Load() }
