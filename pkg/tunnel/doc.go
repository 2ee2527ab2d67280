/*
Package tunnel defines the protocol-independent tunnel capability set and
the in-process manager that tracks active tunnels inside a worker.

A tunnel moves through Disconnected -> Connecting -> Connected ->
Disconnected. Connect returns immediately when already connected and
Disconnect on a disconnected tunnel is a no-op success, so callers never
need to inspect state before acting.

Protocol implementations live in the wireguard and openvpn subpackages.
Tunnels that own their own data plane (WireGuard's userspace netstack)
additionally implement Dialer so the relay can route traffic through them
instead of the OS.
*/
package tunnel
