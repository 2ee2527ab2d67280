// Package config loads the optional YAML daemon configuration and derives
// the data directory layout (registry, worker logs, VPN profiles).
package config
