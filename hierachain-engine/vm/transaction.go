// Package vm provides a small reference executor: counters, transfers,
// aggregators and module publishing over the engine's read view. It is used
// by tests, benchmarks and the servers.
package vm

import (
	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/types"
)

// OpKind names a VM operation.
type OpKind string

const (
	OpIncrement      OpKind = "increment"
	OpDecrement      OpKind = "decrement"
	OpSet            OpKind = "set"
	OpDelete         OpKind = "delete"
	OpTransfer       OpKind = "transfer"
	OpAggCreate      OpKind = "agg_create"
	OpAggAdd         OpKind = "agg_add"
	OpAggSub         OpKind = "agg_sub"
	OpAggRead        OpKind = "agg_read"
	OpAggDestroy     OpKind = "agg_destroy"
	OpPublishModule  OpKind = "publish_module"
	OpReadModule     OpKind = "read_module"
	OpReconfigure    OpKind = "reconfigure"
	OpEmit           OpKind = "emit"
	OpDirectWriteSet OpKind = "direct_write_set"
)

// Op is a single operation. Field use depends on Kind:
//   - counters: Key, Amount (To for transfer)
//   - aggregators: Handle, Key, Amount, Limit
//   - modules: Key is the module id, Data the code
//   - emit: Key is the event type, Data the payload
//   - set and direct_write_set: Key and Data (Amount when Data is nil)
type Op struct {
	Kind   OpKind `json:"kind"`
	Key    string `json:"key,omitempty"`
	To     string `json:"to,omitempty"`
	Handle string `json:"handle,omitempty"`
	Amount uint64 `json:"amount,omitempty"`
	Limit  uint64 `json:"limit,omitempty"`
	Data   []byte `json:"data,omitempty"`
}

// Transaction is an ordered list of operations.
type Transaction struct {
	ID  string `json:"id"`
	Ops []Op   `json:"ops"`
}

func (op Op) aggregatorID() types.AggregatorID {
	return types.AggregatorID{Handle: op.Handle, Key: op.Key}
}
