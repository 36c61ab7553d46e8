package core

import (
	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/types"
)

// commit merges validated outputs in block order. Deltas are folded into
// concrete writes through the versioned store; everything after the first
// SkipRest is pushed to the next block.
func (r *parallelRun[T]) commit() (*BlockOutput, error) {
	r.setState(BlockCommitting)

	results := make([]TxnResult, len(r.txns))
	skipped := false
	for i := range r.txns {
		idx := types.TxnIndex(i)
		if skipped {
			results[i] = TxnResult{Index: idx, Status: types.Retry()}
			continue
		}

		rec := r.records[i].Load()
		switch rec.kind {
		case types.ExecAbort:
			return nil, &AbortError{Index: idx, Err: rec.err}
		case types.ExecSpeculativeAbort:
			return nil, &fallbackError{reason: FallbackSpeculativeAbort, err: rec.err}
		}

		writes, err := r.materializeDeltas(idx, rec.output)
		if err != nil {
			return nil, err
		}
		results[i] = TxnResult{
			Index:        idx,
			Writes:       writes,
			ModuleWrites: rec.output.ModuleWrites,
			Events:       rec.output.Events,
			Status:       rec.output.Status,
		}
		if rec.kind == types.ExecSkipRest {
			skipped = true
		}
	}

	mode := ModeParallel
	if r.materialize {
		mode = ModeParallelNoDeltas
	}
	stats := r.group.stats()
	stats.Keys = r.store.Len()
	return &BlockOutput{Results: results, Mode: mode, Stats: stats}, nil
}

func (r *parallelRun[T]) materializeDeltas(idx types.TxnIndex, out *types.TransactionOutput) ([]types.WriteOp, error) {
	writes := make([]types.WriteOp, 0, len(out.Writes)+len(out.Deltas))
	writes = append(writes, out.Writes...)

	for _, d := range out.Deltas {
		if err := r.provideBase(d.Key); err != nil {
			return nil, err
		}
		v, err := r.store.MaterializeDelta(d.Key, idx)
		if err != nil {
			return nil, &fallbackError{reason: FallbackDeltaMaterialization, err: err}
		}
		writes = append(writes, types.WriteOp{Key: d.Key, Value: types.EncodeU128(v)})
	}
	types.SortWrites(writes)
	return writes, nil
}

// provideBase seeds the pre-block value of key unless a worker already did.
// A missing key is left unseeded; materialization then reports it.
func (r *parallelRun[T]) provideBase(key types.StateKey) error {
	if _, ok := r.store.BaseValue(key); ok {
		return nil
	}
	raw, err := r.base.GetState(key)
	if err != nil {
		return err
	}
	if raw == nil {
		return nil
	}
	v, err := types.DecodeU128(raw)
	if err != nil {
		return &fallbackError{reason: FallbackDeltaMaterialization, err: err}
	}
	r.store.ProvideBaseValue(key, v)
	return nil
}
