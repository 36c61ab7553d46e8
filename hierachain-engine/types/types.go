package types

import "fmt"

// TxnIndex is a transaction's position in block order.
type TxnIndex = uint32

// Incarnation counts how many times a transaction has been (re-)executed.
type Incarnation = uint32

// Version identifies one incarnation of one transaction.
type Version struct {
	TxnIndex    TxnIndex
	Incarnation Incarnation
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.TxnIndex, v.Incarnation)
}

// StateKey addresses a value in global state.
type StateKey string

// ModuleID addresses published code. Module paths are not tracked by the
// versioned store; conflicting reads and writes of the same module force a
// sequential re-run of the block.
type ModuleID string

// AggregatorID identifies an aggregator instance. Handle groups aggregators
// created by one factory, Key is unique per creation.
type AggregatorID struct {
	Handle string
	Key    string
}

// StateKey returns the state location backing the aggregator.
func (id AggregatorID) StateKey() StateKey {
	return StateKey("agg/" + id.Handle + "/" + id.Key)
}

func (id AggregatorID) String() string {
	return id.Handle + "/" + id.Key
}
