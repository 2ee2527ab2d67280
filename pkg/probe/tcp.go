package probe

import (
	"context"
	"net"
	"time"
)

// TCPProbe confirms that a worker's listener is actually accepting
// connections, not just that its descriptor was written.
type TCPProbe struct {
	// Timeout is the connection timeout (default: 1 second).
	Timeout time.Duration
}

// NewTCPProbe creates a probe with the default timeout.
func NewTCPProbe() *TCPProbe {
	return &TCPProbe{Timeout: time.Second}
}

// WithTimeout sets the connection timeout.
func (p *TCPProbe) WithTimeout(timeout time.Duration) *TCPProbe {
	p.Timeout = timeout
	return p
}

// Check dials the address and reports whether the connect succeeded.
func (p *TCPProbe) Check(ctx context.Context, address string) bool {
	dialer := &net.Dialer{Timeout: p.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
