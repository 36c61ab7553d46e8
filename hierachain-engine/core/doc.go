// Package core provides the parallel block executor.
// This package implements:
// - Block-STM scheduler (execution and validation task dispatch)
// - Worker group running speculative executions over a versioned store
// - Commit of validated outputs with delta materialization
// - Sequential execution used as fallback and as ground truth
package core
