/*
Package openvpn drives an external OpenVPN binary as a subprocess.

Connect writes the profile config to a private temp file, spawns the binary
with it, and infers success from the process surviving a fixed startup
delay — the OpenVPN protocol is opaque to this layer, so no stronger signal
exists without speaking the management interface. Early exits surface the
first captured output lines, which covers the common certificate and
permission failures. Disconnect escalates from SIGTERM to a hard kill and
always removes the temp config file.
*/
package openvpn
