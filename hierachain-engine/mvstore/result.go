package mvstore

import (
	"github.com/holiman/uint256"

	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/types"
)

// ReadKind classifies the outcome of a Fetch.
type ReadKind int

const (
	// ReadUninitialized means no lower transaction touched the key; the
	// reader falls through to the base snapshot.
	ReadUninitialized ReadKind = iota
	// ReadVersioned means the nearest lower entry is a write or deletion.
	ReadVersioned
	// ReadResolved means the nearest lower entries are deltas that folded
	// against a known value.
	ReadResolved
	// ReadUnresolved means deltas exist but no base was provided yet.
	ReadUnresolved
	// ReadDependency means the nearest lower entry is an estimate.
	ReadDependency
	// ReadDeltaFailure means folding the deltas left the bounds.
	ReadDeltaFailure
)

func (k ReadKind) String() string {
	switch k {
	case ReadUninitialized:
		return "uninitialized"
	case ReadVersioned:
		return "versioned"
	case ReadResolved:
		return "resolved"
	case ReadUnresolved:
		return "unresolved"
	case ReadDependency:
		return "dependency"
	case ReadDeltaFailure:
		return "delta_application_failure"
	default:
		return "unknown"
	}
}

// ReadResult is the outcome of a Fetch. Only the fields relevant to Kind
// are set.
type ReadResult struct {
	Kind ReadKind

	// ReadVersioned
	Version types.Version
	Value   []byte
	Deleted bool

	// ReadResolved
	Resolved *uint256.Int

	// ReadUnresolved
	Delta types.DeltaOp

	// ReadDependency
	Blocker types.TxnIndex

	// ReadDeltaFailure
	Err error
}

func versioned(e *entry) ReadResult {
	return ReadResult{
		Kind:    ReadVersioned,
		Version: types.Version{TxnIndex: e.idx, Incarnation: e.incarnation},
		Value:   e.value,
		Deleted: e.kind == kindDeletion,
	}
}

func resolved(v *uint256.Int) ReadResult {
	return ReadResult{Kind: ReadResolved, Resolved: v}
}

func failure(err error) ReadResult {
	return ReadResult{Kind: ReadDeltaFailure, Err: err}
}

// fold applies acc onto base and wraps the outcome.
func fold(acc types.DeltaOp, base *uint256.Int) ReadResult {
	v, err := acc.Apply(base)
	if err != nil {
		return failure(err)
	}
	return resolved(v)
}
