// Package probe provides the short-timeout TCP readiness check the
// supervisor runs against a worker's bound port.
package probe
