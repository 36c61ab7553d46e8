// Package aggregator implements bounded u128 accumulators that turn
// read-modify-write conflicts on shared counters into deltas.
//
// An aggregator not created by the current transaction starts in the
// PositiveDelta state: its value is the net change relative to an unknown
// base. Reading it materializes the base and moves it to Data, exactly once.
package aggregator

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/types"
)

// State is the materialization state of an Aggregator.
type State int

const (
	// StateData holds a concrete value.
	StateData State = iota
	// StatePositiveDelta holds a non-negative change over an unknown base.
	StatePositiveDelta
)

func (s State) String() string {
	switch s {
	case StateData:
		return "data"
	case StatePositiveDelta:
		return "positive_delta"
	default:
		return "unknown"
	}
}

// Aggregator is a per-transaction accumulator bounded by [0, limit].
type Aggregator struct {
	id    types.AggregatorID
	value uint256.Int
	state State
	limit uint256.Int
}

func newAggregator(id types.AggregatorID, limit *uint256.Int, state State) *Aggregator {
	a := &Aggregator{id: id, state: state}
	a.limit.Set(limit)
	return a
}

// ID returns the aggregator identifier.
func (a *Aggregator) ID() types.AggregatorID { return a.id }

// State returns the current state.
func (a *Aggregator) State() State { return a.state }

// Value returns a copy of the current value. In PositiveDelta state this is
// the accumulated change, not a total.
func (a *Aggregator) Value() *uint256.Int { return a.value.Clone() }

// Limit returns a copy of the upper bound.
func (a *Aggregator) Limit() *uint256.Int { return a.limit.Clone() }

// Add increases the value. It fails without side effects if the result
// would exceed the limit.
func (a *Aggregator) Add(v *uint256.Int) error {
	sum, overflow := new(uint256.Int).AddOverflow(&a.value, v)
	if overflow || sum.Gt(&a.limit) {
		return wrap(a.id, fmt.Errorf("%w: %s + %s > %s", ErrOverflow, a.value.Dec(), v.Dec(), a.limit.Dec()))
	}
	a.value.Set(sum)
	return nil
}

// Sub decreases the value. Only valid in Data state; callers must
// materialize first.
func (a *Aggregator) Sub(v *uint256.Int) error {
	if a.state == StatePositiveDelta {
		panic(fmt.Sprintf("aggregator %s: sub on positive delta", a.id))
	}
	if a.value.Lt(v) {
		return wrap(a.id, fmt.Errorf("%w: %s - %s", ErrUnderflow, a.value.Dec(), v.Dec()))
	}
	a.value.Sub(&a.value, v)
	return nil
}

// ReadAndMaterialize returns the concrete value, resolving the stored base
// first when the aggregator is still a delta.
func (a *Aggregator) ReadAndMaterialize(resolver types.AggregatorResolver) (*uint256.Int, error) {
	if a.state == StateData {
		return a.value.Clone(), nil
	}

	raw, err := resolver.Resolve(a.id.Handle, a.id.Key)
	if err != nil {
		return nil, wrap(a.id, fmt.Errorf("%w: %w", ErrResolve, err))
	}
	if raw == nil {
		return nil, wrap(a.id, ErrBaseMissing)
	}
	base, err := types.DecodeU128(raw)
	if err != nil {
		return nil, wrap(a.id, fmt.Errorf("%w: %w", ErrResolve, err))
	}

	total, overflow := new(uint256.Int).AddOverflow(base, &a.value)
	if overflow || total.Gt(&a.limit) {
		return nil, wrap(a.id, fmt.Errorf("%w: base %s + %s > %s", ErrOverflow, base.Dec(), a.value.Dec(), a.limit.Dec()))
	}

	a.value.Set(total)
	a.state = StateData
	return a.value.Clone(), nil
}
