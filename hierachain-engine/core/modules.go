package core

import (
	"sync"

	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/types"
)

// moduleTracker accumulates module reads and writes across every incarnation
// of a block. Module code is not versioned, so any path that is both read and
// written within one block cannot be validated in parallel.
type moduleTracker struct {
	mu     sync.Mutex
	reads  map[types.ModuleID]struct{}
	writes map[types.ModuleID]struct{}
}

func newModuleTracker() *moduleTracker {
	return &moduleTracker{
		reads:  make(map[types.ModuleID]struct{}),
		writes: make(map[types.ModuleID]struct{}),
	}
}

// record adds the accesses of one incarnation and reports whether a
// read/write conflict now exists.
func (m *moduleTracker) record(reads []types.ModuleID, writes []types.ModuleWrite) bool {
	if len(reads) == 0 && len(writes) == 0 {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	conflict := false
	for _, id := range reads {
		m.reads[id] = struct{}{}
		if _, ok := m.writes[id]; ok {
			conflict = true
		}
	}
	for _, w := range writes {
		m.writes[w.ID] = struct{}{}
		if _, ok := m.reads[w.ID]; ok {
			conflict = true
		}
	}
	return conflict
}
