/*
Package supervisor spawns, probes and terminates detached worker
processes.

A worker outlives the supervising process: it is started in its own
session (POSIX) or as a detached process (Windows), with stderr redirected
to a per-worker log file. Coordination happens entirely through the
file-backed registry — the supervisor writes identity and pid before the
spawn, then polls the registry and TCP-probes the worker's port until it
is genuinely accepting connections.

Two documented sharp edges are preserved on purpose. The ephemeral-port
pre-allocation races against other processes between release and the
child's bind; the child surfaces that bind failure and the readiness
timeout reports it. And a readiness timeout does not kill the spawned
process — a slow worker may still come up and is then reused by the next
start call for the same correlation key.

Platform differences (detachment flags, signal vs. process API
termination, priority) are isolated in proc_unix.go and proc_windows.go.
*/
package supervisor
