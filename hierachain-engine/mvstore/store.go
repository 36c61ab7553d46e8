// Package mvstore implements the versioned store shared by all workers while
// a block executes: per key, one entry per transaction index that wrote,
// deleted or delta-updated the key.
package mvstore

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/tidwall/btree"
	"github.com/zeebo/xxh3"

	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/types"
)

// Common errors for versioned store operations
var (
	ErrNoDelta                 = errors.New("no delta entry at index")
	ErrBaseValueMissing        = errors.New("base value not provided")
	ErrDeltaApplicationFailure = errors.New("delta application failure")
	ErrEstimateOnMaterialize   = errors.New("estimate below materialized delta")
)

const shardCount = 64

type entryKind uint8

const (
	kindWrite entryKind = iota
	kindDeletion
	kindDelta
)

type entry struct {
	idx         types.TxnIndex
	incarnation types.Incarnation
	kind        entryKind
	value       []byte
	delta       types.DeltaOp
	// shortcut caches the value folded by MaterializeDelta.
	shortcut *uint256.Int
	estimate bool
}

func entryLess(a, b *entry) bool { return a.idx < b.idx }

// chain is the version chain of a single key.
type chain struct {
	mu        sync.RWMutex
	entries   *btree.BTreeG[*entry]
	base      *uint256.Int
	shortcuts int
}

func newChain() *chain {
	return &chain{
		entries: btree.NewBTreeGOptions(entryLess, btree.Options{NoLocks: true}),
	}
}

type shard struct {
	mu     sync.RWMutex
	chains map[types.StateKey]*chain
}

// VersionedStore is safe for concurrent use. Keys are spread over shards by
// hash; every key has its own lock, so unrelated keys never serialize.
type VersionedStore struct {
	shards [shardCount]shard
}

// New creates an empty VersionedStore.
func New() *VersionedStore {
	s := &VersionedStore{}
	for i := range s.shards {
		s.shards[i].chains = make(map[types.StateKey]*chain)
	}
	return s
}

func (s *VersionedStore) shardFor(key types.StateKey) *shard {
	return &s.shards[xxh3.HashString(string(key))%shardCount]
}

func (s *VersionedStore) lookup(key types.StateKey) *chain {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.chains[key]
}

func (s *VersionedStore) getOrCreate(key types.StateKey) *chain {
	sh := s.shardFor(key)
	sh.mu.RLock()
	c, ok := sh.chains[key]
	sh.mu.RUnlock()
	if ok {
		return c
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if c, ok = sh.chains[key]; ok {
		return c
	}
	c = newChain()
	sh.chains[key] = c
	return c
}

// Write records a write of value by (idx, incarnation), replacing any
// previous entry of idx.
func (s *VersionedStore) Write(key types.StateKey, idx types.TxnIndex, incarnation types.Incarnation, value []byte) {
	s.set(key, &entry{idx: idx, incarnation: incarnation, kind: kindWrite, value: value})
}

// WriteDeletion records that (idx, incarnation) deleted the key.
func (s *VersionedStore) WriteDeletion(key types.StateKey, idx types.TxnIndex, incarnation types.Incarnation) {
	s.set(key, &entry{idx: idx, incarnation: incarnation, kind: kindDeletion})
}

// AddDelta records a delta update by idx. Deltas at different indices are
// never applied eagerly; they fold when read or materialized.
func (s *VersionedStore) AddDelta(key types.StateKey, idx types.TxnIndex, op types.DeltaOp) {
	s.set(key, &entry{idx: idx, kind: kindDelta, delta: op})
}

func (s *VersionedStore) set(key types.StateKey, e *entry) {
	c := s.getOrCreate(key)
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, replaced := c.entries.Set(e); replaced && prev.shortcut != nil {
		c.shortcuts--
	}
	c.invalidateShortcutsAbove(e.idx)
}

// Delete removes the entry of idx, if any.
func (s *VersionedStore) Delete(key types.StateKey, idx types.TxnIndex) {
	c := s.lookup(key)
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.entries.Delete(&entry{idx: idx}); ok {
		if prev.shortcut != nil {
			c.shortcuts--
		}
		c.invalidateShortcutsAbove(idx)
	}
}

// MarkEstimate flags the entry of idx so that readers above it receive a
// dependency instead of its value. The entry must exist.
func (s *VersionedStore) MarkEstimate(key types.StateKey, idx types.TxnIndex) {
	s.setEstimate(key, idx, true)
}

// ClearEstimate removes the estimate flag from the entry of idx.
func (s *VersionedStore) ClearEstimate(key types.StateKey, idx types.TxnIndex) {
	s.setEstimate(key, idx, false)
}

func (s *VersionedStore) setEstimate(key types.StateKey, idx types.TxnIndex, flag bool) {
	c := s.lookup(key)
	if c == nil {
		panic(fmt.Sprintf("mvstore: estimate toggle on unknown key %q", key))
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Get(&entry{idx: idx})
	if !ok {
		panic(fmt.Sprintf("mvstore: estimate toggle on missing entry %q@%d", key, idx))
	}
	e.estimate = flag
}

// Fetch returns what a transaction at readerIdx observes for key: the
// nearest entry written by a strictly lower index, folded with any deltas
// above it.
func (s *VersionedStore) Fetch(key types.StateKey, readerIdx types.TxnIndex) ReadResult {
	if readerIdx == 0 {
		return ReadResult{Kind: ReadUninitialized}
	}
	c := s.lookup(key)
	if c == nil {
		return ReadResult{Kind: ReadUninitialized}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resolve(readerIdx - 1)
}

// resolve walks entries at or below upto in descending order. Deltas are
// accumulated so that the fold order always matches transaction order.
// Called with c.mu held.
func (c *chain) resolve(upto types.TxnIndex) ReadResult {
	var (
		acc    types.DeltaOp
		hasAcc bool
		res    ReadResult
		done   bool
	)

	c.entries.Descend(&entry{idx: upto}, func(e *entry) bool {
		done = true
		if e.estimate {
			res = ReadResult{Kind: ReadDependency, Blocker: e.idx}
			return false
		}

		switch e.kind {
		case kindWrite, kindDeletion:
			if !hasAcc {
				res = versioned(e)
				return false
			}
			if e.kind == kindDeletion {
				res = failure(fmt.Errorf("delta over deleted value at %d", e.idx))
				return false
			}
			base, err := types.DecodeU128(e.value)
			if err != nil {
				res = failure(err)
				return false
			}
			res = fold(acc, base)
			return false

		default:
			if e.shortcut != nil {
				if !hasAcc {
					res = resolved(e.shortcut.Clone())
				} else {
					res = fold(acc, e.shortcut)
				}
				return false
			}
			if !hasAcc {
				acc, hasAcc = e.delta, true
				done = false
				return true
			}
			merged, err := e.delta.Then(acc)
			if err != nil {
				res = failure(err)
				return false
			}
			acc = merged
			done = false
			return true
		}
	})

	if done {
		return res
	}
	if !hasAcc {
		return ReadResult{Kind: ReadUninitialized}
	}
	if c.base != nil {
		return fold(acc, c.base)
	}
	return ReadResult{Kind: ReadUnresolved, Delta: acc}
}

func (c *chain) invalidateShortcutsAbove(idx types.TxnIndex) {
	if c.shortcuts == 0 {
		return
	}
	c.entries.Ascend(&entry{idx: idx + 1}, func(e *entry) bool {
		if e.shortcut != nil {
			e.shortcut = nil
			c.shortcuts--
		}
		return c.shortcuts > 0
	})
}

// ProvideBaseValue seeds the pre-block value of key used to resolve deltas.
// Providing the same value again is a no-op; a different value is an
// engine bug and panics.
func (s *VersionedStore) ProvideBaseValue(key types.StateKey, value *uint256.Int) {
	c := s.getOrCreate(key)
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.base == nil {
		c.base = value.Clone()
		return
	}
	if !c.base.Eq(value) {
		panic(fmt.Sprintf("mvstore: base value mismatch for %q: have %s, got %s", key, c.base.Dec(), value.Dec()))
	}
}

// BaseValue returns the provided base of key, if any.
func (s *VersionedStore) BaseValue(key types.StateKey) (*uint256.Int, bool) {
	c := s.lookup(key)
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.base == nil {
		return nil, false
	}
	return c.base.Clone(), true
}

// MaterializeDelta folds every entry at or below idx into a concrete value
// and caches it on the delta entry of idx, so later reads stop walking
// there.
func (s *VersionedStore) MaterializeDelta(key types.StateKey, idx types.TxnIndex) (*uint256.Int, error) {
	c := s.lookup(key)
	if c == nil {
		return nil, fmt.Errorf("%w: %q@%d", ErrNoDelta, key, idx)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Get(&entry{idx: idx})
	if !ok || e.kind != kindDelta {
		return nil, fmt.Errorf("%w: %q@%d", ErrNoDelta, key, idx)
	}

	res := c.resolve(idx)
	switch res.Kind {
	case ReadResolved:
		if e.shortcut == nil {
			c.shortcuts++
		}
		e.shortcut = res.Resolved.Clone()
		return res.Resolved, nil
	case ReadUnresolved:
		return nil, fmt.Errorf("%w: %q", ErrBaseValueMissing, key)
	case ReadDependency:
		return nil, fmt.Errorf("%w: %q@%d blocked by %d", ErrEstimateOnMaterialize, key, idx, res.Blocker)
	default:
		return nil, fmt.Errorf("%w: %q@%d: %v", ErrDeltaApplicationFailure, key, idx, res.Err)
	}
}

// Len returns the number of keys with a version chain.
func (s *VersionedStore) Len() int {
	n := 0
	for i := range s.shards {
		s.shards[i].mu.RLock()
		n += len(s.shards[i].chains)
		s.shards[i].mu.RUnlock()
	}
	return n
}
