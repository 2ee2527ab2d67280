package tunnel

import (
	"context"
	"errors"
	"net"

	"github.com/zhom/donutbrowser-sub002/pkg/types"
)

// Common tunnel errors.
var (
	// ErrBinaryNotFound means the external VPN binary could not be located.
	ErrBinaryNotFound = errors.New("vpn binary not found")

	// ErrHandshakeTimeout means the peer never completed the handshake
	// within the fixed connect window. Not retried here; retry policy
	// belongs to the caller.
	ErrHandshakeTimeout = errors.New("handshake timed out")

	// ErrSubprocessExitedEarly means the VPN subprocess died during the
	// startup window.
	ErrSubprocessExitedEarly = errors.New("vpn process exited early")
)

// Tunnel is the capability set every VPN protocol implementation provides.
// Connect is idempotent; Disconnect on an already-disconnected tunnel is a
// no-op success. New protocols plug in without touching the Manager.
type Tunnel interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
	Status() types.TunnelStatus
	BytesSent() uint64
	BytesReceived() uint64
}

// Dialer is the optional capability of tunnels that own their own data
// plane instead of OS routing. The relay dials destinations through it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}
