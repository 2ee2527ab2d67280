/*
Package wireguard implements the userspace WireGuard tunnel.

The wireguard-go device runs the handshake and packet encapsulation over a
plain IPv4 UDP socket; a netstack TUN gives the tunnel an in-process data
plane. Connect blocks until the first handshake completes (10s window) and
fails fatally on timeout, bad keys, or endpoint resolution errors — the
caller owns any retry policy.

Because nothing is routed at the OS level, consumers reach tunnel
destinations through DialContext rather than the default dialer.
*/
package wireguard
