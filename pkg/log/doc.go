// Package log wraps zerolog with the subsystem's logging conventions:
// a single global logger initialized once per process and child loggers
// carrying component/worker/tunnel fields.
package log
