package core

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// workerGroup runs a fixed number of block workers and collects their
// counters.
type workerGroup struct {
	name    string
	workers int

	// Atomic counters for thread-safe statistics
	executions   atomic.Int64
	validations  atomic.Int64
	aborts       atomic.Int64
	dependencies atomic.Int64
}

func newWorkerGroup(name string, workers int) *workerGroup {
	if workers <= 0 {
		workers = 1
	}
	return &workerGroup{name: name, workers: workers}
}

// run starts the workers and waits for all of them. onCancel is invoked
// when the group context ends, so workers spinning for work can be told to
// stop. A panicking worker fails the group instead of the process.
func (g *workerGroup) run(ctx context.Context, onCancel func(), fn func(ctx context.Context, id int) error) error {
	eg, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, onCancel)
	defer stop()

	for i := 0; i < g.workers; i++ {
		id := i
		eg.Go(func() (err error) {
			// Panic recovery to prevent one worker from crashing the process
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w %s/%d: %s", ErrWorkerPanic, g.name, id, panicToString(r))
				}
			}()
			return fn(gctx, id)
		})
	}
	return eg.Wait()
}

// stats returns current worker statistics.
func (g *workerGroup) stats() Stats {
	return Stats{
		Workers:          g.workers,
		Executions:       g.executions.Load(),
		Validations:      g.validations.Load(),
		ValidationAborts: g.aborts.Load(),
		Dependencies:     g.dependencies.Load(),
	}
}
