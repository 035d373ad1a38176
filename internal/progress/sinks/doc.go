// Package sinks implements progress consumers: structured logging, Prometheus
// run counters, and a repository-backed store.
package sinks
