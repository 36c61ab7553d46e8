package vm

import (
	"fmt"
	"math/rand"

	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/types"
)

// Supply aggregator shared by generated blocks.
const (
	SupplyHandle = "supply"
	SupplyKey    = "total"
	SupplyLimit  = uint64(1) << 62
)

// AccountKey returns the state key of generated account i.
func AccountKey(i int) string {
	return fmt.Sprintf("acct/%d", i)
}

// Genesis returns a base state with keys accounts holding balance each and
// the supply aggregator set to their sum.
func Genesis(keys int, balance uint64) map[types.StateKey][]byte {
	state := make(map[types.StateKey][]byte, keys+1)
	for i := 0; i < keys; i++ {
		state[types.StateKey(AccountKey(i))] = types.EncodeU128(types.U128(balance))
	}
	supply := types.AggregatorID{Handle: SupplyHandle, Key: SupplyKey}
	state[supply.StateKey()] = types.EncodeU128(types.U128(uint64(keys) * balance))
	return state
}

// RandomBlock generates n transactions over keys accounts. Small key counts
// give heavily conflicting blocks.
func RandomBlock(rng *rand.Rand, n, keys int) []*Transaction {
	if keys <= 0 {
		keys = 1
	}
	txns := make([]*Transaction, n)
	for i := range txns {
		ops := make([]Op, 0, 3)
		for j, cnt := 0, 1+rng.Intn(3); j < cnt; j++ {
			ops = append(ops, randomOp(rng, keys))
		}
		txns[i] = &Transaction{ID: fmt.Sprintf("tx-%d", i), Ops: ops}
	}
	return txns
}

func randomOp(rng *rand.Rand, keys int) Op {
	from := AccountKey(rng.Intn(keys))
	amount := uint64(1 + rng.Intn(100))

	switch rng.Intn(6) {
	case 0:
		return Op{Kind: OpIncrement, Key: from, Amount: amount}
	case 1:
		return Op{Kind: OpDecrement, Key: from, Amount: amount}
	case 2, 3:
		return Op{Kind: OpTransfer, Key: from, To: AccountKey(rng.Intn(keys)), Amount: amount}
	case 4:
		return Op{Kind: OpAggAdd, Handle: SupplyHandle, Key: SupplyKey, Limit: SupplyLimit, Amount: amount}
	default:
		return Op{Kind: OpAggRead, Handle: SupplyHandle, Key: SupplyKey, Limit: SupplyLimit}
	}
}

// Pool aggregators used by RandomAggregatorBlock. Their limit is small so
// generated blocks regularly hit overflow and underflow.
const (
	PoolHandle = "pool"
	PoolLimit  = uint64(1000)
)

// PoolID returns the id of generated pool aggregator i.
func PoolID(i int) types.AggregatorID {
	return types.AggregatorID{Handle: PoolHandle, Key: fmt.Sprint(i)}
}

// PoolGenesis returns a base state with pools aggregators set to value and
// accounts accounts holding balance each.
func PoolGenesis(pools, accounts int, value, balance uint64) map[types.StateKey][]byte {
	state := Genesis(accounts, balance)
	for i := 0; i < pools; i++ {
		state[PoolID(i).StateKey()] = types.EncodeU128(types.U128(value))
	}
	return state
}

// RandomAggregatorBlock generates n transactions dominated by aggregator
// operations over pools pool aggregators, mixed with plain account writes.
func RandomAggregatorBlock(rng *rand.Rand, n, pools, accounts int) []*Transaction {
	if pools <= 0 {
		pools = 1
	}
	if accounts <= 0 {
		accounts = 1
	}
	txns := make([]*Transaction, n)
	for i := range txns {
		ops := make([]Op, 0, 4)
		for j, cnt := 0, 1+rng.Intn(4); j < cnt; j++ {
			ops = append(ops, randomPoolOp(rng, pools, accounts))
		}
		txns[i] = &Transaction{ID: fmt.Sprintf("agg-%d", i), Ops: ops}
	}
	return txns
}

func randomPoolOp(rng *rand.Rand, pools, accounts int) Op {
	id := PoolID(rng.Intn(pools))
	amount := uint64(1 + rng.Intn(300))
	agg := func(kind OpKind) Op {
		return Op{Kind: kind, Handle: id.Handle, Key: id.Key, Limit: PoolLimit, Amount: amount}
	}

	switch n := rng.Intn(20); {
	case n < 7:
		return agg(OpAggAdd)
	case n < 10:
		return agg(OpAggSub)
	case n < 13:
		return agg(OpAggRead)
	case n < 14:
		return agg(OpAggCreate)
	case n < 15:
		return agg(OpAggDestroy)
	case n < 16:
		return Op{Kind: OpDelete, Key: AccountKey(rng.Intn(accounts))}
	case n < 18:
		return Op{Kind: OpIncrement, Key: AccountKey(rng.Intn(accounts)), Amount: amount}
	default:
		return Op{Kind: OpTransfer, Key: AccountKey(rng.Intn(accounts)), To: AccountKey(rng.Intn(accounts)), Amount: amount}
	}
}
