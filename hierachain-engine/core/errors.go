package core

import (
	"errors"
	"fmt"

	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/types"
)

// Common errors for block execution
var (
	ErrParallelExecutionFailed = errors.New("parallel execution failed and sequential fallback is disabled")
	ErrWorkerPanic             = errors.New("panic in block worker")
	ErrUnexpectedStatus        = errors.New("unexpected execution status in sequential run")
	ErrMissingOutput           = errors.New("executor returned no output")
)

// AbortError is returned when an executor aborted a transaction and the
// abort survived validation.
type AbortError struct {
	Index types.TxnIndex
	Err   error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("transaction %d aborted: %v", e.Index, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }

// FallbackReason names why a parallel run was abandoned.
type FallbackReason int

const (
	FallbackNone FallbackReason = iota
	// FallbackDeltasUnsupported restarts the block with deltas disabled.
	FallbackDeltasUnsupported
	// FallbackModuleConflict means module code was both read and written.
	FallbackModuleConflict
	// FallbackIncarnationLimit means a transaction exceeded MaxIncarnations.
	FallbackIncarnationLimit
	// FallbackDeltaMaterialization means a delta failed to fold at commit.
	FallbackDeltaMaterialization
	// FallbackSpeculativeAbort means a speculative abort survived validation.
	FallbackSpeculativeAbort
)

func (r FallbackReason) String() string {
	switch r {
	case FallbackNone:
		return "none"
	case FallbackDeltasUnsupported:
		return "deltas_unsupported"
	case FallbackModuleConflict:
		return "module_conflict"
	case FallbackIncarnationLimit:
		return "incarnation_limit"
	case FallbackDeltaMaterialization:
		return "delta_materialization"
	case FallbackSpeculativeAbort:
		return "speculative_abort"
	default:
		return "unknown"
	}
}

// fallbackError carries a fallback decision out of a parallel run.
type fallbackError struct {
	reason FallbackReason
	err    error
}

func (e *fallbackError) Error() string {
	if e.err == nil {
		return "fallback: " + e.reason.String()
	}
	return fmt.Sprintf("fallback: %s: %v", e.reason, e.err)
}

func (e *fallbackError) Unwrap() error { return e.err }

// panicToString converts a recovered panic value to a string.
func panicToString(r interface{}) string {
	switch v := r.(type) {
	case string:
		return v
	case error:
		return v.Error()
	default:
		return fmt.Sprintf("%v", v)
	}
}
