package core

import (
	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/types"
)

// Mode is the execution mode that produced a block output.
type Mode int

const (
	ModeParallel Mode = iota
	// ModeParallelNoDeltas is a parallel run with aggregator deltas
	// materialized by the executor.
	ModeParallelNoDeltas
	ModeSequential
)

func (m Mode) String() string {
	switch m {
	case ModeParallel:
		return "parallel"
	case ModeParallelNoDeltas:
		return "parallel_no_deltas"
	case ModeSequential:
		return "sequential"
	default:
		return "unknown"
	}
}

// BlockState represents the lifecycle of one block execution.
type BlockState int

const (
	BlockRunning BlockState = iota
	BlockCommitting
	BlockDone
	BlockSequentialFallback
)

func (s BlockState) String() string {
	switch s {
	case BlockRunning:
		return "running"
	case BlockCommitting:
		return "committing"
	case BlockDone:
		return "done"
	case BlockSequentialFallback:
		return "sequential_fallback"
	default:
		return "unknown"
	}
}

// TxnResult is the final result of one transaction.
type TxnResult struct {
	Index        types.TxnIndex      `json:"index"`
	Writes       []types.WriteOp     `json:"writes"`
	ModuleWrites []types.ModuleWrite `json:"module_writes,omitempty"`
	Events       []types.Event       `json:"events,omitempty"`
	Status       types.TxnStatus     `json:"status"`
}

// Stats contains block execution statistics.
type Stats struct {
	Workers          int    `json:"workers"`
	Executions       int64  `json:"executions"`
	Validations      int64  `json:"validations"`
	ValidationAborts int64  `json:"validation_aborts"`
	Dependencies     int64  `json:"dependencies"`
	// Keys is the number of keys written through the versioned store.
	Keys             int    `json:"keys"`
	Fallback         string `json:"fallback,omitempty"`
}

// BlockOutput is the ordered result of a block.
type BlockOutput struct {
	Results []TxnResult `json:"results"`
	Mode    Mode        `json:"mode"`
	Stats   Stats       `json:"stats"`
}

// add merges the counters of an abandoned run.
func (s *Stats) add(o Stats) {
	s.Executions += o.Executions
	s.Validations += o.Validations
	s.ValidationAborts += o.ValidationAborts
	s.Dependencies += o.Dependencies
}
