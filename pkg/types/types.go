package types

import (
	"fmt"
	"time"
)

// WorkerKind identifies what a worker process does with the traffic it owns.
type WorkerKind string

const (
	// WorkerKindDirectProxy forwards connections to a configured upstream
	// proxy (or acts as a direct relay when no upstream is set).
	WorkerKindDirectProxy WorkerKind = "direct-proxy"
	// WorkerKindWireGuard runs a userspace WireGuard tunnel and routes
	// relay traffic through it.
	WorkerKindWireGuard WorkerKind = "wireguard"
	// WorkerKindOpenVPN drives an external OpenVPN process and relies on
	// OS-level routing through its TUN interface.
	WorkerKindOpenVPN WorkerKind = "openvpn"
)

// Valid reports whether the kind is one of the known worker kinds.
func (k WorkerKind) Valid() bool {
	switch k {
	case WorkerKindDirectProxy, WorkerKindWireGuard, WorkerKindOpenVPN:
		return true
	}
	return false
}

// WorkerDescriptor is the persisted record describing one worker process.
// It is the single source of truth shared between the supervising process
// and the worker itself: the supervisor writes ID, CorrelationKey, Kind,
// ProfileID and PID before the worker starts; the worker writes LocalPort
// and LocalURL once its listener is bound. No field is written by both
// sides, which is what makes lock-free file sharing safe.
type WorkerDescriptor struct {
	ID             string     `json:"id"`
	CorrelationKey string     `json:"correlation_key"`
	Kind           WorkerKind `json:"kind"`
	LocalPort      uint16     `json:"local_port,omitempty"`
	LocalURL       string     `json:"local_url,omitempty"`
	PID            int        `json:"pid,omitempty"`
	ProfileID      string     `json:"profile_id,omitempty"`
}

// Validate checks the fields the supervisor must populate before spawning.
func (d *WorkerDescriptor) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("descriptor missing id")
	}
	if d.CorrelationKey == "" {
		return fmt.Errorf("descriptor %s missing correlation key", d.ID)
	}
	if !d.Kind.Valid() {
		return fmt.Errorf("descriptor %s has unknown kind %q", d.ID, d.Kind)
	}
	return nil
}

// TunnelStatus is a point-in-time snapshot of one tunnel's state. Byte
// counters are monotonic and cover handshake as well as data-plane traffic.
type TunnelStatus struct {
	VPNID         string     `json:"vpn_id"`
	Connected     bool       `json:"connected"`
	ConnectedAt   *time.Time `json:"connected_at,omitempty"`
	LastHandshake *time.Time `json:"last_handshake,omitempty"`
	BytesSent     uint64     `json:"bytes_sent"`
	BytesReceived uint64     `json:"bytes_received"`
}
