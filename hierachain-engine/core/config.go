package core

import (
	"errors"
	"runtime"
)

// Config contains configuration for the block executor.
type Config struct {
	// Concurrency is the default number of workers when ExecuteBlock is
	// called with a non-positive concurrency.
	Concurrency int `mapstructure:"concurrency"`
	// MaxIncarnations bounds how often one transaction may be re-executed
	// before the block falls back to sequential execution. 0 means unlimited.
	MaxIncarnations uint32 `mapstructure:"max_incarnations"`
	// EnableDeltas lets executors emit aggregator deltas instead of
	// materialized writes.
	EnableDeltas bool `mapstructure:"enable_deltas"`
	// AllowSequentialFallback re-runs a block sequentially when the parallel
	// run hits an unsupported conflict. When false such blocks fail with
	// ErrParallelExecutionFailed.
	AllowSequentialFallback bool `mapstructure:"allow_sequential_fallback"`
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency:             runtime.NumCPU(),
		MaxIncarnations:         0,
		EnableDeltas:            true,
		AllowSequentialFallback: true,
	}
}

// Validate checks the configuration for obvious mistakes.
func (c Config) Validate() error {
	if c.Concurrency < 0 {
		return errors.New("concurrency must not be negative")
	}
	return nil
}
