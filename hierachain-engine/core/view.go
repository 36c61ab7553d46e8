package core

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/mvstore"
	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/types"
)

type readKind int

const (
	// readStorage fell through to the base snapshot.
	readStorage readKind = iota
	readVersioned
	readResolved
	// readUnresolved saw deltas over a base that is missing or not numeric.
	readUnresolved
	readDeltaFailure
)

// readDescriptor records what one read observed, enough to decide later
// whether a fresh fetch would observe the same.
type readDescriptor struct {
	key     types.StateKey
	kind    readKind
	version types.Version
	value   *uint256.Int
}

// validate re-fetches the key and compares with what was observed.
func (r readDescriptor) validate(store *mvstore.VersionedStore, idx types.TxnIndex) bool {
	res := store.Fetch(r.key, idx)
	switch r.kind {
	case readStorage:
		return res.Kind == mvstore.ReadUninitialized
	case readVersioned:
		return res.Kind == mvstore.ReadVersioned && res.Version == r.version
	case readResolved:
		return res.Kind == mvstore.ReadResolved && res.Resolved.Eq(r.value)
	case readUnresolved:
		return res.Kind == mvstore.ReadUnresolved
	case readDeltaFailure:
		return res.Kind == mvstore.ReadDeltaFailure
	default:
		return false
	}
}

// txnView is the ReadView of one incarnation in the parallel run. It layers
// the versioned store over the base snapshot and captures the read-set.
// Owned by a single worker.
type txnView struct {
	idx   types.TxnIndex
	store *mvstore.VersionedStore
	base  types.StateView

	reads       []readDescriptor
	moduleReads []types.ModuleID
	dependency  *types.DependencyError
}

func newTxnView(idx types.TxnIndex, store *mvstore.VersionedStore, base types.StateView) *txnView {
	return &txnView{idx: idx, store: store, base: base}
}

// GetState implements types.StateView.
func (v *txnView) GetState(key types.StateKey) ([]byte, error) {
	res := v.store.Fetch(key, v.idx)
	switch res.Kind {
	case mvstore.ReadDependency:
		dep := &types.DependencyError{Reader: v.idx, Blocker: res.Blocker}
		if v.dependency == nil {
			v.dependency = dep
		}
		return nil, dep

	case mvstore.ReadVersioned:
		v.reads = append(v.reads, readDescriptor{key: key, kind: readVersioned, version: res.Version})
		if res.Deleted {
			return nil, nil
		}
		return res.Value, nil

	case mvstore.ReadResolved:
		v.reads = append(v.reads, readDescriptor{key: key, kind: readResolved, value: res.Resolved})
		return types.EncodeU128(res.Resolved), nil

	case mvstore.ReadUnresolved:
		return v.resolveAgainstBase(key, res.Delta)

	case mvstore.ReadDeltaFailure:
		v.reads = append(v.reads, readDescriptor{key: key, kind: readDeltaFailure})
		return nil, fmt.Errorf("%w: %s: %v", types.ErrSpeculativeRead, key, res.Err)

	default:
		v.reads = append(v.reads, readDescriptor{key: key, kind: readStorage})
		return v.base.GetState(key)
	}
}

// resolveAgainstBase seeds the store with the pre-block value of key and
// folds the pending deltas onto it.
func (v *txnView) resolveAgainstBase(key types.StateKey, delta types.DeltaOp) ([]byte, error) {
	raw, err := v.base.GetState(key)
	if err != nil {
		return nil, err
	}
	// No base is provided here, so later fetches keep seeing the deltas
	// unresolved and the read validates as long as the chain stays that way.
	if raw == nil {
		v.reads = append(v.reads, readDescriptor{key: key, kind: readUnresolved})
		return nil, fmt.Errorf("%w: %s: %v", types.ErrSpeculativeRead, key, mvstore.ErrBaseValueMissing)
	}
	base, err := types.DecodeU128(raw)
	if err != nil {
		v.reads = append(v.reads, readDescriptor{key: key, kind: readUnresolved})
		return nil, fmt.Errorf("%w: %s: %v", types.ErrSpeculativeRead, key, err)
	}
	v.store.ProvideBaseValue(key, base)

	// Fetch again so the recorded read matches what validation will see.
	res := v.store.Fetch(key, v.idx)
	switch res.Kind {
	case mvstore.ReadResolved:
		v.reads = append(v.reads, readDescriptor{key: key, kind: readResolved, value: res.Resolved})
		return types.EncodeU128(res.Resolved), nil
	case mvstore.ReadUnresolved:
		// Cannot happen once a base is provided; treat as inconsistent.
		v.reads = append(v.reads, readDescriptor{key: key, kind: readDeltaFailure})
		return nil, fmt.Errorf("%w: %s unresolved after base", types.ErrSpeculativeRead, key)
	default:
		return v.GetState(key)
	}
}

// GetModule implements types.StateView. Module paths are not versioned;
// reads go to the base and are tracked for conflict detection.
func (v *txnView) GetModule(id types.ModuleID) ([]byte, error) {
	v.moduleReads = append(v.moduleReads, id)
	return v.base.GetModule(id)
}

// Resolve implements types.AggregatorResolver.
func (v *txnView) Resolve(handle, key string) ([]byte, error) {
	return v.GetState(types.AggregatorID{Handle: handle, Key: key}.StateKey())
}
