package aggregator

import (
	"sort"

	"github.com/holiman/uint256"

	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/types"
)

// Data is the aggregator scratchpad of a single transaction incarnation.
// It is owned by one worker and not safe for concurrent use.
type Data struct {
	newAggregators map[types.AggregatorID]struct{}
	destroyed      map[types.AggregatorID]struct{}
	aggregators    map[types.AggregatorID]*Aggregator
}

// NewData creates an empty scratchpad.
func NewData() *Data {
	return &Data{
		newAggregators: make(map[types.AggregatorID]struct{}),
		destroyed:      make(map[types.AggregatorID]struct{}),
		aggregators:    make(map[types.AggregatorID]*Aggregator),
	}
}

// Get returns the aggregator for id, loading it as a zero delta if this
// transaction has not touched it yet.
func (d *Data) Get(id types.AggregatorID, limit *uint256.Int) (*Aggregator, error) {
	if _, ok := d.destroyed[id]; ok {
		return nil, wrap(id, ErrDestroyed)
	}
	if a, ok := d.aggregators[id]; ok {
		return a, nil
	}
	a := newAggregator(id, limit, StatePositiveDelta)
	d.aggregators[id] = a
	return a, nil
}

// Create registers a fresh aggregator with value zero.
func (d *Data) Create(id types.AggregatorID, limit *uint256.Int) *Aggregator {
	a := newAggregator(id, limit, StateData)
	if _, ok := d.destroyed[id]; ok {
		// Recreated after removal: the write replaces the tombstone.
		delete(d.destroyed, id)
	} else {
		d.newAggregators[id] = struct{}{}
	}
	d.aggregators[id] = a
	return a
}

// Remove drops id. Aggregators created by this transaction vanish without a
// trace; others leave a tombstone.
func (d *Data) Remove(id types.AggregatorID) {
	delete(d.aggregators, id)
	if _, ok := d.newAggregators[id]; ok {
		delete(d.newAggregators, id)
		return
	}
	d.destroyed[id] = struct{}{}
}

// Forget drops everything the scratchpad knows about the aggregator stored
// at key. It is used when the key is overwritten directly.
func (d *Data) Forget(key types.StateKey) {
	for id := range d.aggregators {
		if id.StateKey() == key {
			delete(d.aggregators, id)
			delete(d.newAggregators, id)
		}
	}
	for id := range d.destroyed {
		if id.StateKey() == key {
			delete(d.destroyed, id)
		}
	}
}

// MaterializeAll reads every delta aggregator through resolver so that no
// deltas remain in the effects.
func (d *Data) MaterializeAll(resolver types.AggregatorResolver) error {
	for _, id := range d.sortedIDs() {
		if _, err := d.aggregators[id].ReadAndMaterialize(resolver); err != nil {
			return err
		}
	}
	return nil
}

// Effects are the state changes produced by a scratchpad.
type Effects struct {
	Writes []types.WriteOp
	Deltas []types.DeltaWrite
}

// Effects converts the scratchpad into writes, deltas and tombstones,
// ordered by key.
func (d *Data) Effects() Effects {
	var eff Effects
	for _, id := range d.sortedIDs() {
		a := d.aggregators[id]
		switch a.state {
		case StateData:
			eff.Writes = append(eff.Writes, types.WriteOp{
				Key:   id.StateKey(),
				Value: types.EncodeU128(&a.value),
			})
		case StatePositiveDelta:
			if a.value.IsZero() {
				continue
			}
			eff.Deltas = append(eff.Deltas, types.DeltaWrite{
				Key: id.StateKey(),
				Op:  types.AdditionDelta(&a.value, &a.limit),
			})
		}
	}
	for id := range d.destroyed {
		eff.Writes = append(eff.Writes, types.WriteOp{Key: id.StateKey(), Deleted: true})
	}
	types.SortWrites(eff.Writes)
	return eff
}

func (d *Data) sortedIDs() []types.AggregatorID {
	ids := make([]types.AggregatorID, 0, len(d.aggregators))
	for id := range d.aggregators {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].StateKey() < ids[j].StateKey() })
	return ids
}
