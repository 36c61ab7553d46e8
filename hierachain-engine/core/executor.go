package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/types"
)

// MetricsSink receives block level observations. It is passed in at
// construction; the executor keeps no global counters.
type MetricsSink interface {
	ObserveBlock(out *BlockOutput, elapsed time.Duration)
	RecordFallback(reason FallbackReason)
}

type nopMetrics struct{}

func (nopMetrics) ObserveBlock(*BlockOutput, time.Duration) {}
func (nopMetrics) RecordFallback(FallbackReason)            {}

type options struct {
	logger  zerolog.Logger
	metrics MetricsSink
}

// Option configures a BlockExecutor.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m MetricsSink) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// BlockExecutor executes blocks of transactions of type T. It holds no
// per-block state and may execute several blocks concurrently.
type BlockExecutor[T any] struct {
	factory types.ExecutorFactory[T]
	config  Config
	logger  zerolog.Logger
	metrics MetricsSink
}

// NewBlockExecutor creates a block executor over factory.
func NewBlockExecutor[T any](factory types.ExecutorFactory[T], config Config, opts ...Option) *BlockExecutor[T] {
	o := options{logger: zerolog.Nop(), metrics: nopMetrics{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &BlockExecutor[T]{
		factory: factory,
		config:  config,
		logger:  o.logger.With().Str("module", "executor").Logger(),
		metrics: o.metrics,
	}
}

// Config returns the executor configuration.
func (e *BlockExecutor[T]) Config() Config {
	return e.config
}

// ExecuteBlock executes txns against base with concurrency workers and
// returns one result per transaction in block order. The results equal
// those of ExecuteSequential for every concurrency level.
func (e *BlockExecutor[T]) ExecuteBlock(ctx context.Context, txns []T, base types.StateView, concurrency int) (*BlockOutput, error) {
	if concurrency <= 0 {
		concurrency = e.config.Concurrency
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	start := time.Now()
	out, err := e.execute(ctx, txns, base, concurrency)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	e.metrics.ObserveBlock(out, elapsed)

	e.logger.Debug().
		Int("txns", len(txns)).
		Int("workers", concurrency).
		Stringer("mode", out.Mode).
		Int64("executions", out.Stats.Executions).
		Int64("validation_aborts", out.Stats.ValidationAborts).
		Int("keys", out.Stats.Keys).
		Dur("elapsed", elapsed).
		Msg("block executed")
	return out, nil
}

func (e *BlockExecutor[T]) execute(ctx context.Context, txns []T, base types.StateView, concurrency int) (*BlockOutput, error) {
	materialize := !e.config.EnableDeltas
	var spent Stats

	for {
		run := newParallelRun(e, txns, base, concurrency, materialize)
		out, err := run.execute(ctx)
		if err == nil {
			out.Stats.add(spent)
			return out, nil
		}

		var fb *fallbackError
		if !errors.As(err, &fb) {
			return nil, err
		}
		spent.add(run.group.stats())
		e.metrics.RecordFallback(fb.reason)

		if fb.reason == FallbackDeltasUnsupported && !materialize {
			e.logger.Warn().
				Str("reason", fb.reason.String()).
				Int("txns", len(txns)).
				Str("mode", ModeParallelNoDeltas.String()).
				Msg("restarting block with deltas disabled")
			materialize = true
			continue
		}

		if !e.config.AllowSequentialFallback {
			return nil, fmt.Errorf("%w: %v", ErrParallelExecutionFailed, fb)
		}

		e.logger.Warn().
			Err(fb.err).
			Str("reason", fb.reason.String()).
			Int("txns", len(txns)).
			Str("mode", ModeSequential.String()).
			Msg("falling back to sequential execution")

		out, err = e.executeSequential(ctx, txns, base)
		if err != nil {
			return nil, err
		}
		spent.add(out.Stats)
		out.Stats = spent
		out.Stats.Workers = 1
		out.Stats.Fallback = fb.reason.String()
		return out, nil
	}
}

// ExecuteSequential executes txns one at a time in block order. It is the
// ground truth for ExecuteBlock.
func (e *BlockExecutor[T]) ExecuteSequential(ctx context.Context, txns []T, base types.StateView) (*BlockOutput, error) {
	start := time.Now()
	out, err := e.executeSequential(ctx, txns, base)
	if err != nil {
		return nil, err
	}
	e.metrics.ObserveBlock(out, time.Since(start))
	return out, nil
}
