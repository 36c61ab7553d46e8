package core

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/mvstore"
	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/types"
)

// incarnationRecord is what one incarnation left behind. It is immutable
// once published.
type incarnationRecord struct {
	incarnation types.Incarnation
	kind        types.ExecutionKind
	output      *types.TransactionOutput
	err         error
	reads       []readDescriptor
	keys        map[types.StateKey]struct{}
}

// parallelRun is a single parallel attempt at a block.
type parallelRun[T any] struct {
	e           *BlockExecutor[T]
	txns        []T
	base        types.StateView
	materialize bool

	store   *mvstore.VersionedStore
	sched   *Scheduler
	modules *moduleTracker
	records []atomic.Pointer[incarnationRecord]
	group   *workerGroup

	state      atomic.Int32
	haltReason atomic.Pointer[fallbackError]
}

func newParallelRun[T any](e *BlockExecutor[T], txns []T, base types.StateView, workers int, materialize bool) *parallelRun[T] {
	return &parallelRun[T]{
		e:           e,
		txns:        txns,
		base:        base,
		materialize: materialize,
		store:       mvstore.New(),
		sched:       NewScheduler(len(txns)),
		modules:     newModuleTracker(),
		records:     make([]atomic.Pointer[incarnationRecord], len(txns)),
		group:       newWorkerGroup("block", workers),
	}
}

func (r *parallelRun[T]) setState(s BlockState) {
	r.state.Store(int32(s))
	r.e.logger.Trace().Stringer("state", s).Int("txns", len(r.txns)).Msg("block state")
}

// halt stops the run and remembers the first reason.
func (r *parallelRun[T]) halt(reason FallbackReason, err error) {
	r.haltReason.CompareAndSwap(nil, &fallbackError{reason: reason, err: err})
	r.sched.Halt()
}

func (r *parallelRun[T]) execute(ctx context.Context) (*BlockOutput, error) {
	r.setState(BlockRunning)

	err := r.group.run(ctx, func() { r.sched.Halt() }, r.worker)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fb := r.haltReason.Load(); fb != nil {
		r.setState(BlockSequentialFallback)
		return nil, fb
	}

	out, err := r.commit()
	if err != nil {
		return nil, err
	}
	r.setState(BlockDone)
	return out, nil
}

func (r *parallelRun[T]) worker(ctx context.Context, _ int) error {
	exec := r.e.factory.Init(r.base)
	task := Task{Kind: TaskNone}

	for !r.sched.Done() {
		if err := ctx.Err(); err != nil {
			r.sched.Halt()
			return err
		}
		switch task.Kind {
		case TaskExecution:
			task = r.tryExecute(exec, task.Version)
		case TaskValidation:
			task = r.tryValidate(task.Version)
		default:
			task = r.sched.NextTask()
		}
	}
	return nil
}

func (r *parallelRun[T]) tryExecute(exec types.ExecutorTask[T], v types.Version) Task {
	idx := v.TxnIndex
	if limit := r.e.config.MaxIncarnations; limit > 0 && v.Incarnation >= limit {
		r.halt(FallbackIncarnationLimit, fmt.Errorf("transaction %d reached incarnation %d", idx, v.Incarnation))
		return Task{Kind: TaskNone}
	}

	for {
		r.group.executions.Add(1)
		view := newTxnView(idx, r.store, r.base)
		status := exec.Execute(view, r.txns[idx], idx, r.materialize)

		if view.dependency != nil {
			r.group.dependencies.Add(1)
			if r.sched.AddDependency(idx, view.dependency.Blocker) {
				return Task{Kind: TaskNone}
			}
			// The blocker finished in the meantime.
			continue
		}
		return r.finishExecution(v, view, status)
	}
}

func (r *parallelRun[T]) finishExecution(v types.Version, view *txnView, status types.ExecutionStatus) Task {
	switch status.Kind {
	case types.ExecDirectWriteSetNotCapable, types.ExecDelayedFieldsInvariant:
		r.halt(FallbackDeltasUnsupported, fmt.Errorf("transaction %d: %s", v.TxnIndex, status.Kind))
		return Task{Kind: TaskNone}
	case types.ExecSuccess, types.ExecSkipRest:
		if status.Output == nil {
			status = types.Abort(ErrMissingOutput)
		}
	}

	rec := &incarnationRecord{
		incarnation: v.Incarnation,
		kind:        status.Kind,
		output:      status.Output,
		err:         status.Err,
		reads:       view.reads,
	}
	if rec.kind != types.ExecSuccess && rec.kind != types.ExecSkipRest {
		rec.output = types.EmptyOutput(types.Keep())
	}

	wroteNew := r.record(v.TxnIndex, rec)
	if r.modules.record(view.moduleReads, rec.output.ModuleWrites) {
		r.halt(FallbackModuleConflict, fmt.Errorf("transaction %d touched a module read and written in this block", v.TxnIndex))
		return Task{Kind: TaskNone}
	}
	return r.sched.FinishExecution(v.TxnIndex, v.Incarnation, wroteNew)
}

// record publishes the output of an incarnation into the versioned store and
// removes entries the previous incarnation wrote but this one did not. It
// reports whether any key not written by the previous incarnation was
// written.
func (r *parallelRun[T]) record(idx types.TxnIndex, rec *incarnationRecord) bool {
	prev := r.records[idx].Load()
	out := rec.output
	rec.keys = make(map[types.StateKey]struct{}, len(out.Writes)+len(out.Deltas))

	wroteNew := false
	mark := func(key types.StateKey) {
		rec.keys[key] = struct{}{}
		if prev == nil {
			wroteNew = true
			return
		}
		if _, ok := prev.keys[key]; !ok {
			wroteNew = true
		}
	}

	for _, w := range out.Writes {
		if w.Deleted {
			r.store.WriteDeletion(w.Key, idx, rec.incarnation)
		} else {
			r.store.Write(w.Key, idx, rec.incarnation, w.Value)
		}
		mark(w.Key)
	}
	for _, d := range out.Deltas {
		r.store.AddDelta(d.Key, idx, d.Op)
		mark(d.Key)
	}

	if prev != nil {
		for key := range prev.keys {
			if _, ok := rec.keys[key]; !ok {
				r.store.Delete(key, idx)
			}
		}
	}

	r.records[idx].Store(rec)
	return wroteNew
}

func (r *parallelRun[T]) tryValidate(v types.Version) Task {
	r.group.validations.Add(1)
	idx := v.TxnIndex

	rec := r.records[idx].Load()
	valid := true
	if rec != nil && rec.incarnation == v.Incarnation {
		for _, read := range rec.reads {
			if !read.validate(r.store, idx) {
				valid = false
				break
			}
		}
	}

	aborted := !valid && r.sched.TryValidationAbort(idx, v.Incarnation)
	if aborted {
		r.group.aborts.Add(1)
		for key := range rec.keys {
			r.store.MarkEstimate(key, idx)
		}
	}
	return r.sched.FinishValidation(idx, aborted)
}
