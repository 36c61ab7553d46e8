package core

import (
	"context"
	"fmt"

	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/mvstore"
	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/types"
)

// overlayView sees the base snapshot plus every write committed so far.
type overlayView struct {
	base    types.StateView
	writes  map[types.StateKey]types.WriteOp
	modules map[types.ModuleID][]byte
}

func newOverlayView(base types.StateView) *overlayView {
	return &overlayView{
		base:    base,
		writes:  make(map[types.StateKey]types.WriteOp),
		modules: make(map[types.ModuleID][]byte),
	}
}

// GetState implements types.StateView.
func (v *overlayView) GetState(key types.StateKey) ([]byte, error) {
	if w, ok := v.writes[key]; ok {
		if w.Deleted {
			return nil, nil
		}
		return w.Value, nil
	}
	return v.base.GetState(key)
}

// GetModule implements types.StateView.
func (v *overlayView) GetModule(id types.ModuleID) ([]byte, error) {
	if code, ok := v.modules[id]; ok {
		return code, nil
	}
	return v.base.GetModule(id)
}

// Resolve implements types.AggregatorResolver.
func (v *overlayView) Resolve(handle, key string) ([]byte, error) {
	return v.GetState(types.AggregatorID{Handle: handle, Key: key}.StateKey())
}

// apply commits an output, folding any residual deltas onto the current
// value, and returns the resulting writes ordered by key.
func (v *overlayView) apply(out *types.TransactionOutput) ([]types.WriteOp, error) {
	writes := make([]types.WriteOp, 0, len(out.Writes)+len(out.Deltas))
	writes = append(writes, out.Writes...)

	for _, d := range out.Deltas {
		raw, err := v.GetState(d.Key)
		if err != nil {
			return nil, err
		}
		if raw == nil {
			return nil, fmt.Errorf("%w: %s", mvstore.ErrBaseValueMissing, d.Key)
		}
		cur, err := types.DecodeU128(raw)
		if err != nil {
			return nil, err
		}
		next, err := d.Op.Apply(cur)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", mvstore.ErrDeltaApplicationFailure, d.Key, err)
		}
		writes = append(writes, types.WriteOp{Key: d.Key, Value: types.EncodeU128(next)})
	}

	for _, w := range writes {
		v.writes[w.Key] = w
	}
	for _, m := range out.ModuleWrites {
		v.modules[m.ID] = m.Code
	}
	types.SortWrites(writes)
	return writes, nil
}

func (e *BlockExecutor[T]) executeSequential(ctx context.Context, txns []T, base types.StateView) (*BlockOutput, error) {
	exec := e.factory.Init(base)
	view := newOverlayView(base)
	results := make([]TxnResult, len(txns))

	skipped := false
	executed := int64(0)
	for i, txn := range txns {
		idx := types.TxnIndex(i)
		if skipped {
			results[i] = TxnResult{Index: idx, Status: types.Retry()}
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		status := exec.Execute(view, txn, idx, true)
		executed++
		switch status.Kind {
		case types.ExecSuccess, types.ExecSkipRest:
		case types.ExecAbort:
			return nil, &AbortError{Index: idx, Err: status.Err}
		default:
			return nil, fmt.Errorf("%w: transaction %d: %s: %v", ErrUnexpectedStatus, idx, status.Kind, status.Err)
		}
		if status.Output == nil {
			return nil, &AbortError{Index: idx, Err: ErrMissingOutput}
		}

		writes, err := view.apply(status.Output)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", idx, err)
		}
		results[i] = TxnResult{
			Index:        idx,
			Writes:       writes,
			ModuleWrites: status.Output.ModuleWrites,
			Events:       status.Output.Events,
			Status:       status.Output.Status,
		}
		if status.Kind == types.ExecSkipRest {
			skipped = true
		}
	}

	return &BlockOutput{
		Results: results,
		Mode:    ModeSequential,
		Stats:   Stats{Workers: 1, Executions: executed},
	}, nil
}
