package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/VanDung-dev/HieraChain-BlockSTM/cache"
	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/core"
	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/data"
	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/state"
	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/types"
	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/vm"
)

// ErrEmptyRequest is returned for a request without payload.
var ErrEmptyRequest = errors.New("received empty data")

// HandlerConfig configures a BlockHandler.
type HandlerConfig struct {
	// Concurrency overrides the executor's worker count when positive.
	Concurrency int `mapstructure:"concurrency"`
	// CacheSize is the LRU size over each block snapshot; 0 disables it.
	CacheSize int `mapstructure:"cache_size"`
	// Commit applies block results to the backend.
	Commit bool `mapstructure:"commit"`
}

// BlockHandler executes blocks against a state backend. Blocks run one at
// a time in arrival order; parallelism is inside the block.
type BlockHandler struct {
	executor  *core.BlockExecutor[*vm.Transaction]
	backend   state.Backend
	config    HandlerConfig
	converter *data.Converter
	codec     *data.IPCCodec
	logger    zerolog.Logger

	mu     sync.Mutex
	blocks atomic.Uint64
}

// NewBlockHandler creates a handler.
func NewBlockHandler(executor *core.BlockExecutor[*vm.Transaction], backend state.Backend, config HandlerConfig, logger zerolog.Logger) *BlockHandler {
	return &BlockHandler{
		executor:  executor,
		backend:   backend,
		config:    config,
		converter: data.NewConverter(),
		codec:     data.NewIPCCodec(),
		logger:    logger.With().Str("module", "handler").Logger(),
	}
}

// Blocks returns the number of blocks executed.
func (h *BlockHandler) Blocks() uint64 {
	return h.blocks.Load()
}

// ExecuteBlock runs txns against a fresh snapshot of the backend and, if
// configured, commits the results.
func (h *BlockHandler) ExecuteBlock(ctx context.Context, txns []*vm.Transaction) (*core.BlockOutput, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	snap, err := h.backend.Open()
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer snap.Close()

	var base types.StateView = snap
	if h.config.CacheSize > 0 {
		cv, err := cache.NewCachedView(snap, h.config.CacheSize)
		if err != nil {
			return nil, err
		}
		base = cv
		defer func() {
			st := cv.GetStats()
			h.logger.Debug().Int64("hits", st.Hits).Int64("misses", st.Misses).Msg("snapshot cache")
		}()
	}

	out, err := h.executor.ExecuteBlock(ctx, txns, base, h.config.Concurrency)
	if err != nil {
		return nil, err
	}

	if h.config.Commit {
		if err := h.backend.Apply(Results(out)); err != nil {
			return nil, fmt.Errorf("commit block: %w", err)
		}
	}
	h.blocks.Add(1)
	return out, nil
}

// Handle decodes an Arrow IPC block, executes it and encodes the results.
func (h *BlockHandler) Handle(ctx context.Context, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyRequest
	}

	record, err := h.codec.Deserialize(payload, data.TransactionSchema())
	if err != nil {
		return nil, fmt.Errorf("decode block: %w", err)
	}
	txns, err := h.converter.RecordToTransactions(record)
	record.Release()
	if err != nil {
		return nil, fmt.Errorf("decode block: %w", err)
	}

	out, err := h.ExecuteBlock(ctx, txns)
	if err != nil {
		return nil, err
	}

	result, err := h.converter.BlockOutputToRecord(out)
	if err != nil {
		return nil, fmt.Errorf("encode results: %w", err)
	}
	defer result.Release()
	return h.codec.Serialize(result)
}

// Results extracts the state changes of a block output.
func Results(out *core.BlockOutput) []state.Result {
	results := make([]state.Result, 0, len(out.Results))
	for _, r := range out.Results {
		if len(r.Writes) == 0 && len(r.ModuleWrites) == 0 {
			continue
		}
		results = append(results, state.Result{Writes: r.Writes, ModuleWrites: r.ModuleWrites})
	}
	return results
}
