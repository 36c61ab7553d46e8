package state

import (
	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/types"
)

// Snapshot is the base view of one block. Close releases it.
type Snapshot interface {
	types.StateView
	Close()
}

// Backend is committed state that hands out block snapshots and accepts
// committed results. Callers serialize Open/Apply pairs per block.
type Backend interface {
	Open() (Snapshot, error)
	Apply(results []Result) error
}

var (
	_ Backend = (*MapView)(nil)
	_ Backend = (*BadgerView)(nil)
)

type mapSnapshot struct{ *MapView }

func (mapSnapshot) Close() {}

// Open implements Backend. The snapshot shares the map, so Apply must not
// run while it is in use.
func (v *MapView) Open() (Snapshot, error) {
	return mapSnapshot{v}, nil
}

// Open implements Backend.
func (b *BadgerView) Open() (Snapshot, error) {
	return b.Snapshot(), nil
}
