package types

import "sort"

// TxnStatusKind is the block-level fate of a transaction.
type TxnStatusKind int

const (
	StatusKeep TxnStatusKind = iota
	StatusDiscard
	StatusRetry
)

func (s TxnStatusKind) String() string {
	switch s {
	case StatusKeep:
		return "keep"
	case StatusDiscard:
		return "discard"
	case StatusRetry:
		return "retry"
	default:
		return "unknown"
	}
}

// TxnStatus is the status attached to a transaction output. A kept
// transaction with a Failure aborted locally: it stays in the block but
// carries no state effects.
type TxnStatus struct {
	Kind    TxnStatusKind `json:"kind"`
	Failure string        `json:"failure,omitempty"`
}

// Keep returns a successful keep status.
func Keep() TxnStatus { return TxnStatus{Kind: StatusKeep} }

// KeepFailed returns a keep status for a transaction that aborted.
func KeepFailed(reason string) TxnStatus { return TxnStatus{Kind: StatusKeep, Failure: reason} }

// Discard returns a discard status.
func Discard(reason string) TxnStatus { return TxnStatus{Kind: StatusDiscard, Failure: reason} }

// Retry returns the status for transactions pushed to the next block.
func Retry() TxnStatus { return TxnStatus{Kind: StatusRetry} }

// WriteOp is a concrete write or deletion of a state key.
type WriteOp struct {
	Key     StateKey
	Value   []byte
	Deleted bool
}

// DeltaWrite is a delta update of a state key.
type DeltaWrite struct {
	Key StateKey
	Op  DeltaOp
}

// ModuleWrite publishes code under a module path.
type ModuleWrite struct {
	ID   ModuleID
	Code []byte
}

// Event is an opaque event emitted by a transaction.
type Event struct {
	Type string
	Data []byte
}

// TransactionOutput is what one incarnation of a transaction produced.
type TransactionOutput struct {
	Writes       []WriteOp
	Deltas       []DeltaWrite
	ModuleWrites []ModuleWrite
	Events       []Event
	Status       TxnStatus
}

// EmptyOutput returns an output with no effects and the given status.
func EmptyOutput(status TxnStatus) *TransactionOutput {
	return &TransactionOutput{Status: status}
}

// SortWrites orders writes by key so outputs compare deterministically.
func SortWrites(ws []WriteOp) {
	sort.Slice(ws, func(i, j int) bool { return ws[i].Key < ws[j].Key })
}
