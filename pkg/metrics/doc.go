// Package metrics declares the prometheus instruments for the relay and
// tunnel data paths. Workers register them with the default registerer;
// nothing here starts an HTTP exporter.
package metrics
