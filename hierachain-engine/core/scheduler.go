package core

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring"

	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/types"
)

// TxnStatus represents the scheduling status of one transaction index.
type TxnStatus int

const (
	// TxnNotStarted means the index is ready for its next incarnation.
	TxnNotStarted TxnStatus = iota
	TxnExecuting
	TxnExecuted
	// TxnAborting means the incarnation was invalidated or suspended on a
	// dependency and waits to be reset to NotStarted.
	TxnAborting
)

func (s TxnStatus) String() string {
	switch s {
	case TxnNotStarted:
		return "not_started"
	case TxnExecuting:
		return "executing"
	case TxnExecuted:
		return "executed"
	case TxnAborting:
		return "aborting"
	default:
		return "unknown"
	}
}

// TaskKind is the kind of work handed to a worker.
type TaskKind int

const (
	TaskNone TaskKind = iota
	TaskExecution
	TaskValidation
	TaskDone
)

func (k TaskKind) String() string {
	switch k {
	case TaskNone:
		return "none"
	case TaskExecution:
		return "execution"
	case TaskValidation:
		return "validation"
	case TaskDone:
		return "done"
	default:
		return "unknown"
	}
}

// Task is a unit of scheduler work.
type Task struct {
	Kind    TaskKind
	Version types.Version
}

type txnState struct {
	mu          sync.Mutex
	status      TxnStatus
	incarnation types.Incarnation

	depMu sync.Mutex
	deps  *roaring.Bitmap
}

// Scheduler hands out execution and validation tasks for one block. It
// always prefers the lowest index, so transactions early in the block
// settle first.
type Scheduler struct {
	numTxns uint64
	txns    []txnState

	executionIdx   atomic.Uint64
	validationIdx  atomic.Uint64
	decreaseCnt    atomic.Uint64
	numActiveTasks atomic.Int64
	doneMarker     atomic.Bool
	halted         atomic.Bool
}

// NewScheduler creates a scheduler for numTxns transactions.
func NewScheduler(numTxns int) *Scheduler {
	s := &Scheduler{
		numTxns: uint64(numTxns),
		txns:    make([]txnState, numTxns),
	}
	for i := range s.txns {
		s.txns[i].deps = roaring.New()
	}
	if numTxns == 0 {
		s.doneMarker.Store(true)
	}
	return s
}

// Done reports whether all work is finished or the scheduler was halted.
func (s *Scheduler) Done() bool {
	return s.doneMarker.Load()
}

// Halt stops task dispatch. It returns true for the first caller.
func (s *Scheduler) Halt() bool {
	first := s.halted.CompareAndSwap(false, true)
	s.doneMarker.Store(true)
	return first
}

// Halted reports whether Halt was called.
func (s *Scheduler) Halted() bool {
	return s.halted.Load()
}

// NextTask returns the next task, spinning while other workers hold the
// only remaining work. It returns a TaskDone task once the block is done.
func (s *Scheduler) NextTask() Task {
	for !s.Done() {
		if s.validationIdx.Load() < s.executionIdx.Load() {
			if v, ok := s.nextVersionToValidate(); ok {
				return Task{Kind: TaskValidation, Version: v}
			}
		} else {
			if v, ok := s.nextVersionToExecute(); ok {
				return Task{Kind: TaskExecution, Version: v}
			}
		}
		runtime.Gosched()
	}
	return Task{Kind: TaskDone}
}

func (s *Scheduler) nextVersionToExecute() (types.Version, bool) {
	if s.executionIdx.Load() >= s.numTxns {
		s.checkDone()
		return types.Version{}, false
	}
	s.numActiveTasks.Add(1)
	idx := s.executionIdx.Add(1) - 1
	if v, ok := s.tryIncarnate(idx); ok {
		return v, true
	}
	s.numActiveTasks.Add(-1)
	return types.Version{}, false
}

func (s *Scheduler) nextVersionToValidate() (types.Version, bool) {
	if s.validationIdx.Load() >= s.numTxns {
		s.checkDone()
		return types.Version{}, false
	}
	s.numActiveTasks.Add(1)
	idx := s.validationIdx.Add(1) - 1
	if idx < s.numTxns {
		t := &s.txns[idx]
		t.mu.Lock()
		status, inc := t.status, t.incarnation
		t.mu.Unlock()
		if status == TxnExecuted {
			return types.Version{TxnIndex: types.TxnIndex(idx), Incarnation: inc}, true
		}
	}
	s.numActiveTasks.Add(-1)
	return types.Version{}, false
}

// tryIncarnate moves idx from NotStarted to Executing. Callers own the
// active task count on failure.
func (s *Scheduler) tryIncarnate(idx uint64) (types.Version, bool) {
	if idx >= s.numTxns {
		return types.Version{}, false
	}
	t := &s.txns[idx]
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != TxnNotStarted {
		return types.Version{}, false
	}
	t.status = TxnExecuting
	return types.Version{TxnIndex: types.TxnIndex(idx), Incarnation: t.incarnation}, true
}

func (s *Scheduler) checkDone() {
	observed := s.decreaseCnt.Load()
	if min(s.executionIdx.Load(), s.validationIdx.Load()) >= s.numTxns &&
		s.numActiveTasks.Load() == 0 &&
		observed == s.decreaseCnt.Load() {
		s.doneMarker.Store(true)
	}
}

func (s *Scheduler) decreaseExecutionIdx(target uint64) {
	fetchMin(&s.executionIdx, target)
	s.decreaseCnt.Add(1)
}

func (s *Scheduler) decreaseValidationIdx(target uint64) {
	fetchMin(&s.validationIdx, target)
	s.decreaseCnt.Add(1)
}

func fetchMin(v *atomic.Uint64, target uint64) {
	for {
		cur := v.Load()
		if cur <= target || v.CompareAndSwap(cur, target) {
			return
		}
	}
}

// AddDependency suspends txnIdx until blocker finishes its next execution.
// It returns false if blocker already finished, in which case the caller
// re-executes immediately.
func (s *Scheduler) AddDependency(txnIdx, blocker types.TxnIndex) bool {
	b := &s.txns[blocker]
	b.depMu.Lock()
	defer b.depMu.Unlock()

	b.mu.Lock()
	executed := b.status == TxnExecuted
	b.mu.Unlock()
	if executed {
		return false
	}

	t := &s.txns[txnIdx]
	t.mu.Lock()
	t.status = TxnAborting
	t.mu.Unlock()

	b.deps.Add(txnIdx)
	s.numActiveTasks.Add(-1)
	return true
}

func (s *Scheduler) setReadyStatus(idx types.TxnIndex) {
	t := &s.txns[idx]
	t.mu.Lock()
	t.incarnation++
	t.status = TxnNotStarted
	t.mu.Unlock()
}

// FinishExecution marks the version executed and resumes its dependents.
// It may hand back a validation task for the same version.
func (s *Scheduler) FinishExecution(idx types.TxnIndex, inc types.Incarnation, wroteNew bool) Task {
	t := &s.txns[idx]
	t.mu.Lock()
	t.status = TxnExecuted
	t.mu.Unlock()

	t.depMu.Lock()
	deps := t.deps
	t.deps = roaring.New()
	t.depMu.Unlock()

	if !deps.IsEmpty() {
		it := deps.Iterator()
		for it.HasNext() {
			s.setReadyStatus(it.Next())
		}
		s.decreaseExecutionIdx(uint64(deps.Minimum()))
	}

	if s.validationIdx.Load() > uint64(idx) {
		if !wroteNew {
			return Task{Kind: TaskValidation, Version: types.Version{TxnIndex: idx, Incarnation: inc}}
		}
		s.decreaseValidationIdx(uint64(idx))
	}
	s.numActiveTasks.Add(-1)
	return Task{Kind: TaskNone}
}

// TryValidationAbort claims the abort of a failed validation. Only one
// validator per incarnation succeeds.
func (s *Scheduler) TryValidationAbort(idx types.TxnIndex, inc types.Incarnation) bool {
	t := &s.txns[idx]
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.incarnation == inc && t.status == TxnExecuted {
		t.status = TxnAborting
		return true
	}
	return false
}

// FinishValidation completes a validation task. After an abort the index is
// made ready again and may be handed back for immediate re-execution.
func (s *Scheduler) FinishValidation(idx types.TxnIndex, aborted bool) Task {
	if aborted {
		s.setReadyStatus(idx)
		s.decreaseValidationIdx(uint64(idx) + 1)
		if s.executionIdx.Load() > uint64(idx) {
			if v, ok := s.tryIncarnate(uint64(idx)); ok {
				return Task{Kind: TaskExecution, Version: v}
			}
		}
	}
	s.numActiveTasks.Add(-1)
	return Task{Kind: TaskNone}
}

// Status returns the current status and incarnation of idx.
func (s *Scheduler) Status(idx types.TxnIndex) (TxnStatus, types.Incarnation) {
	t := &s.txns[idx]
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status, t.incarnation
}
