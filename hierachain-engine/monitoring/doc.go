// Package monitoring provides Prometheus metrics for block execution.
// This package implements:
// - A core.MetricsSink backed by an explicit registerer
// - Request counters for the Arrow and ZeroMQ endpoints
// - An HTTP server exposing /metrics and /health
package monitoring
