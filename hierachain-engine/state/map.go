// Package state provides base state snapshots for block execution: an
// in-memory map and a badger-backed store.
package state

import (
	"sync"

	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/types"
)

// MapView is an in-memory base snapshot. It is safe for concurrent reads;
// Apply must not race with block execution.
type MapView struct {
	mu      sync.RWMutex
	state   map[types.StateKey][]byte
	modules map[types.ModuleID][]byte
}

// NewMapView creates a snapshot holding a copy of state.
func NewMapView(state map[types.StateKey][]byte) *MapView {
	v := &MapView{
		state:   make(map[types.StateKey][]byte, len(state)),
		modules: make(map[types.ModuleID][]byte),
	}
	for k, val := range state {
		v.state[k] = val
	}
	return v
}

// GetState implements types.StateView.
func (v *MapView) GetState(key types.StateKey) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state[key], nil
}

// GetModule implements types.StateView.
func (v *MapView) GetModule(id types.ModuleID) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.modules[id], nil
}

// SetModule stores module code.
func (v *MapView) SetModule(id types.ModuleID, code []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.modules[id] = code
}

// Apply commits block results so the view becomes the next block's base.
// It never fails.
func (v *MapView) Apply(results []Result) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, r := range results {
		for _, w := range r.Writes {
			if w.Deleted {
				delete(v.state, w.Key)
				continue
			}
			v.state[w.Key] = w.Value
		}
		for _, m := range r.ModuleWrites {
			v.modules[m.ID] = m.Code
		}
	}
	return nil
}

// Len returns the number of state keys.
func (v *MapView) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.state)
}

// Result is the part of a transaction result that changes state.
type Result struct {
	Writes       []types.WriteOp
	ModuleWrites []types.ModuleWrite
}
