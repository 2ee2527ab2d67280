package wireguard

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.zx2c4.com/wireguard/device"
	"golang.zx2c4.com/wireguard/tun/netstack"

	"github.com/zhom/donutbrowser-sub002/pkg/log"
	"github.com/zhom/donutbrowser-sub002/pkg/metrics"
	"github.com/zhom/donutbrowser-sub002/pkg/tunnel"
	"github.com/zhom/donutbrowser-sub002/pkg/types"
)

const (
	defaultMTU       = 1420
	defaultKeepalive = 25
	// How long Connect waits for the first completed handshake.
	handshakeTimeout = 10 * time.Second
	handshakePoll    = 200 * time.Millisecond
)

// Config describes one WireGuard tunnel. Keys are base64 as found in
// standard wg config files.
type Config struct {
	VPNID        string
	PrivateKey   string
	PeerPublic   string
	PresharedKey string // optional
	Endpoint     string // host:port
	Addresses    []string
	DNS          []string
	AllowedIPs   []string
	MTU          int
	Keepalive    int // seconds, 0 = default
}

// Tunnel is a userspace WireGuard tunnel. The wireguard-go engine runs the
// handshake and encapsulation over a raw UDP socket; the netstack TUN gives
// the tunnel its own data plane, so there is no OS route and the relay must
// dial destinations through DialContext.
type Tunnel struct {
	cfg Config

	mu          sync.Mutex
	dev         *device.Device
	bind        *countingBind
	net         *netstack.Net
	connected   bool
	connectedAt time.Time
	handshakeAt time.Time
}

var _ tunnel.Tunnel = (*Tunnel)(nil)
var _ tunnel.Dialer = (*Tunnel)(nil)

// New creates a disconnected tunnel from the config.
func New(cfg Config) *Tunnel {
	return &Tunnel{cfg: cfg}
}

// Connect decodes the keys, resolves the peer endpoint, brings the device
// up and waits for the first handshake. Any failure is fatal for this
// attempt; no retries happen at this layer.
func (t *Tunnel) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected {
		return nil
	}

	logger := log.WithTunnelID(t.cfg.VPNID)

	priv, err := DecodeKey(t.cfg.PrivateKey)
	if err != nil {
		return fmt.Errorf("private key: %w", err)
	}
	pub, err := DecodeKey(t.cfg.PeerPublic)
	if err != nil {
		return fmt.Errorf("peer public key: %w", err)
	}
	ipc := &strings.Builder{}
	fmt.Fprintf(ipc, "private_key=%s\n", keyToHex(priv))
	fmt.Fprintf(ipc, "public_key=%s\n", keyToHex(pub))
	if t.cfg.PresharedKey != "" {
		psk, err := DecodeKey(t.cfg.PresharedKey)
		if err != nil {
			return fmt.Errorf("preshared key: %w", err)
		}
		fmt.Fprintf(ipc, "preshared_key=%s\n", keyToHex(psk))
	}

	endpoint, err := resolveEndpoint(ctx, t.cfg.Endpoint)
	if err != nil {
		return err
	}
	fmt.Fprintf(ipc, "endpoint=%s\n", endpoint)

	allowed := t.cfg.AllowedIPs
	if len(allowed) == 0 {
		allowed = []string{"0.0.0.0/0"}
	}
	for _, cidr := range allowed {
		fmt.Fprintf(ipc, "allowed_ip=%s\n", strings.TrimSpace(cidr))
	}

	keepalive := t.cfg.Keepalive
	if keepalive <= 0 {
		keepalive = defaultKeepalive
	}
	// Keepalive also provokes the initial handshake as soon as the device
	// comes up.
	fmt.Fprintf(ipc, "persistent_keepalive_interval=%d\n", keepalive)

	mtu := t.cfg.MTU
	if mtu <= 0 {
		mtu = defaultMTU
	}

	addrs, err := parseAddrs(t.cfg.Addresses)
	if err != nil {
		return fmt.Errorf("tunnel address: %w", err)
	}
	dns, err := parseAddrs(t.cfg.DNS)
	if err != nil {
		return fmt.Errorf("tunnel dns: %w", err)
	}

	tun, tnet, err := netstack.CreateNetTUN(addrs, dns, mtu)
	if err != nil {
		return fmt.Errorf("failed to create netstack tun: %w", err)
	}

	bind := newCountingBind(t.cfg.VPNID)
	dev := device.NewDevice(tun, bind, device.NewLogger(device.LogLevelError, fmt.Sprintf("wg-%s ", t.cfg.VPNID)))

	if err := dev.IpcSet(ipc.String()); err != nil {
		dev.Close()
		return fmt.Errorf("failed to configure device: %w", err)
	}
	if err := dev.Up(); err != nil {
		dev.Close()
		return fmt.Errorf("failed to bring device up: %w", err)
	}

	handshakeAt, err := t.waitHandshake(ctx, dev)
	if err != nil {
		dev.Close()
		return err
	}

	t.dev = dev
	t.bind = bind
	t.net = tnet
	t.connected = true
	t.connectedAt = time.Now()
	t.handshakeAt = handshakeAt

	metrics.TunnelConnected.WithLabelValues(t.cfg.VPNID).Set(1)
	logger.Info().
		Str("endpoint", endpoint).
		Time("handshake", handshakeAt).
		Msg("wireguard tunnel connected")
	return nil
}

// waitHandshake polls the device until the peer reports a completed
// handshake or the fixed window elapses.
func (t *Tunnel) waitHandshake(ctx context.Context, dev *device.Device) (time.Time, error) {
	deadline := time.Now().Add(handshakeTimeout)
	for {
		if hs, ok := lastHandshake(dev); ok {
			return hs, nil
		}
		if time.Now().After(deadline) {
			return time.Time{}, tunnel.ErrHandshakeTimeout
		}
		select {
		case <-ctx.Done():
			return time.Time{}, ctx.Err()
		case <-time.After(handshakePoll):
		}
	}
}

// lastHandshake reads the peer's handshake timestamp from the device IPC
// interface.
func lastHandshake(dev *device.Device) (time.Time, bool) {
	state, err := dev.IpcGet()
	if err != nil {
		return time.Time{}, false
	}
	var sec, nsec int64
	for _, line := range strings.Split(state, "\n") {
		if v, ok := strings.CutPrefix(line, "last_handshake_time_sec="); ok {
			sec, _ = strconv.ParseInt(v, 10, 64)
		}
		if v, ok := strings.CutPrefix(line, "last_handshake_time_nsec="); ok {
			nsec, _ = strconv.ParseInt(v, 10, 64)
		}
	}
	if sec == 0 {
		return time.Time{}, false
	}
	return time.Unix(sec, nsec), true
}

// Disconnect tears the device down. Calling it on a disconnected tunnel is
// a no-op success.
func (t *Tunnel) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return nil
	}

	t.dev.Close()
	t.dev = nil
	t.net = nil
	t.connected = false
	metrics.TunnelConnected.WithLabelValues(t.cfg.VPNID).Set(0)
	logger := log.WithTunnelID(t.cfg.VPNID)
	logger.Info().Msg("wireguard tunnel disconnected")
	return nil
}

// IsConnected reports whether the tunnel is up.
func (t *Tunnel) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Status returns a snapshot including the most recent handshake time.
func (t *Tunnel) Status() types.TunnelStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := types.TunnelStatus{
		VPNID:     t.cfg.VPNID,
		Connected: t.connected,
	}
	if t.bind != nil {
		st.BytesSent = t.bind.BytesSent()
		st.BytesReceived = t.bind.BytesReceived()
	}
	if !t.connected {
		return st
	}

	connectedAt := t.connectedAt
	st.ConnectedAt = &connectedAt
	handshakeAt := t.handshakeAt
	if hs, ok := lastHandshake(t.dev); ok {
		handshakeAt = hs
		t.handshakeAt = hs
	}
	st.LastHandshake = &handshakeAt
	return st
}

// BytesSent covers every packet written to the peer, handshake included.
func (t *Tunnel) BytesSent() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bind == nil {
		return 0
	}
	return t.bind.BytesSent()
}

// BytesReceived covers every packet read from the peer, handshake included.
func (t *Tunnel) BytesReceived() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bind == nil {
		return 0
	}
	return t.bind.BytesReceived()
}

// DialContext opens a TCP connection through the tunnel's own network
// stack. The relay uses this instead of OS dialing because a userspace
// tunnel installs no OS route.
func (t *Tunnel) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	t.mu.Lock()
	tnet := t.net
	t.mu.Unlock()
	if tnet == nil {
		return nil, fmt.Errorf("tunnel %s is not connected", t.cfg.VPNID)
	}
	return tnet.DialContext(ctx, network, address)
}

// resolveEndpoint resolves host:port to an IPv4 ip:port. Resolution
// failure is fatal for the connect attempt.
func resolveEndpoint(ctx context.Context, endpoint string) (string, error) {
	host, port, err := net.SplitHostPort(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			return net.JoinHostPort(ip4.String(), port), nil
		}
		return "", fmt.Errorf("endpoint %q is not IPv4", endpoint)
	}

	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ips, err := net.DefaultResolver.LookupIP(rctx, "ip4", host)
	if err != nil {
		return "", fmt.Errorf("failed to resolve endpoint %q: %w", endpoint, err)
	}
	if len(ips) == 0 {
		return "", fmt.Errorf("endpoint %q has no IPv4 address", endpoint)
	}
	return net.JoinHostPort(ips[0].String(), port), nil
}

func parseAddrs(in []string) ([]netip.Addr, error) {
	addrs := make([]netip.Addr, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		// Tolerate CIDR notation from config files.
		if i := strings.IndexByte(s, '/'); i >= 0 {
			s = s[:i]
		}
		a, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %w", s, err)
		}
		addrs = append(addrs, a)
	}
	return addrs, nil
}
