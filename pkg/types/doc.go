// Package types defines the shared records of the worker subsystem: the
// persisted worker descriptor and the tunnel status snapshot. It has no
// dependencies so every other package can import it.
package types
