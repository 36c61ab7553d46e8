// Package cache provides read-through caching of base state snapshots.
// This package implements:
// - Thread-safe LRU cache over any StateView
// - Separate caching of state values and module code
// - Negative caching of missing keys
package cache
