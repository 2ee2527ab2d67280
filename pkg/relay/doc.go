/*
Package relay implements the minimal SOCKS5 relay a worker process serves
on its local port.

Only the CONNECT subset exists: no-auth negotiation, a single CONNECT
request with IPv4 or domain addressing, then a bidirectional splice. There
is deliberately no userspace TCP/IP stack here — when the active tunnel
owns OS-level routing (OpenVPN, direct proxies) a plain outbound dial
suffices, and WireGuard workers swap the dial step for the tunnel's own
netstack dialer via DialFunc.
*/
package relay
