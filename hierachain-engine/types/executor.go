package types

import (
	"errors"
	"fmt"
)

// ErrSpeculativeRead is returned by a per-transaction view when a read
// produced a value that cannot be trusted yet, e.g. a delta chain that does
// not fold against the speculative base.
var ErrSpeculativeRead = errors.New("speculative read is inconsistent")

// DependencyError is returned by a per-transaction view when the read hit an
// estimate written by a lower transaction that is pending re-execution.
type DependencyError struct {
	Reader  TxnIndex
	Blocker TxnIndex
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("txn %d depends on txn %d", e.Reader, e.Blocker)
}

// IsSpeculative reports whether err stems from a speculative read that the
// engine will retry.
func IsSpeculative(err error) bool {
	var dep *DependencyError
	return errors.As(err, &dep) || errors.Is(err, ErrSpeculativeRead)
}

// StateView is a read-only base snapshot. Implementations must be safe for
// concurrent use and are never mutated by the engine.
type StateView interface {
	// GetState returns nil, nil when the key does not exist.
	GetState(key StateKey) ([]byte, error)
	// GetModule returns nil, nil when the module does not exist.
	GetModule(id ModuleID) ([]byte, error)
}

// AggregatorResolver resolves the stored value of an aggregator.
type AggregatorResolver interface {
	// Resolve returns nil, nil when the aggregator has no stored value.
	Resolve(handle, key string) ([]byte, error)
}

// ReadView is the view handed to an executor task for one incarnation.
type ReadView interface {
	StateView
	AggregatorResolver
}

// ExecutorTask executes single transactions.
type ExecutorTask[T any] interface {
	Execute(view ReadView, txn T, idx TxnIndex, materializeDeltas bool) ExecutionStatus
}

// ExecutorFactory creates an executor task bound to a base snapshot.
type ExecutorFactory[T any] interface {
	Init(base StateView) ExecutorTask[T]
}

// ExecutionKind classifies an executor result.
type ExecutionKind int

const (
	// ExecSuccess carries a normal output.
	ExecSuccess ExecutionKind = iota
	// ExecSkipRest carries an output after which the rest of the block is
	// discarded and retried in the next block.
	ExecSkipRest
	// ExecAbort carries an executor error that aborts the block.
	ExecAbort
	// ExecSpeculativeAbort signals an internally inconsistent view.
	ExecSpeculativeAbort
	// ExecDelayedFieldsInvariant signals that the aggregator optimisation
	// hit an internal invariant.
	ExecDelayedFieldsInvariant
	// ExecDirectWriteSetNotCapable signals a transaction kind that cannot
	// run with the aggregator optimisation enabled.
	ExecDirectWriteSetNotCapable
)

func (k ExecutionKind) String() string {
	switch k {
	case ExecSuccess:
		return "success"
	case ExecSkipRest:
		return "skip_rest"
	case ExecAbort:
		return "abort"
	case ExecSpeculativeAbort:
		return "speculative_abort"
	case ExecDelayedFieldsInvariant:
		return "delayed_fields_invariant"
	case ExecDirectWriteSetNotCapable:
		return "direct_write_set_not_capable"
	default:
		return "unknown"
	}
}

// ExecutionStatus is the result of ExecutorTask.Execute.
type ExecutionStatus struct {
	Kind   ExecutionKind
	Output *TransactionOutput
	Err    error
}

// Success wraps an output.
func Success(out *TransactionOutput) ExecutionStatus {
	return ExecutionStatus{Kind: ExecSuccess, Output: out}
}

// SkipRest wraps an output that ends the block.
func SkipRest(out *TransactionOutput) ExecutionStatus {
	return ExecutionStatus{Kind: ExecSkipRest, Output: out}
}

// Abort wraps an executor error.
func Abort(err error) ExecutionStatus {
	return ExecutionStatus{Kind: ExecAbort, Err: err}
}

// SpeculativeAbort reports an inconsistent view.
func SpeculativeAbort(err error) ExecutionStatus {
	return ExecutionStatus{Kind: ExecSpeculativeAbort, Err: err}
}

// DelayedFieldsInvariant reports a broken aggregator optimisation invariant.
func DelayedFieldsInvariant(err error) ExecutionStatus {
	return ExecutionStatus{Kind: ExecDelayedFieldsInvariant, Err: err}
}

// DirectWriteSetNotCapable reports a transaction incompatible with deltas.
func DirectWriteSetNotCapable() ExecutionStatus {
	return ExecutionStatus{Kind: ExecDirectWriteSetNotCapable}
}
