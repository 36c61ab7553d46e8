package cache

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"

	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/types"
)

// DefaultSize is the default number of cached entries per kind.
const DefaultSize = 65536

type moduleKey types.ModuleID

// CachedView is a read-through LRU cache over an immutable base snapshot.
// It must be discarded when the base changes.
type CachedView struct {
	base  types.StateView
	cache *lru.Cache

	hits   atomic.Int64
	misses atomic.Int64
}

// CacheStats contains cache statistics.
type CacheStats struct {
	Size    int     `json:"size"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// NewCachedView wraps base with an LRU cache of size entries.
func NewCachedView(base types.StateView, size int) (*CachedView, error) {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &CachedView{base: base, cache: c}, nil
}

// GetState implements types.StateView.
func (v *CachedView) GetState(key types.StateKey) ([]byte, error) {
	return v.get(key, func() ([]byte, error) { return v.base.GetState(key) })
}

// GetModule implements types.StateView.
func (v *CachedView) GetModule(id types.ModuleID) ([]byte, error) {
	return v.get(moduleKey(id), func() ([]byte, error) { return v.base.GetModule(id) })
}

func (v *CachedView) get(key interface{}, load func() ([]byte, error)) ([]byte, error) {
	if val, ok := v.cache.Get(key); ok {
		v.hits.Add(1)
		return val.([]byte), nil
	}
	v.misses.Add(1)

	val, err := load()
	if err != nil {
		return nil, err
	}
	// nil values are cached too; a missing key stays missing.
	v.cache.Add(key, val)
	return val, nil
}

// GetStats returns cache statistics.
func (v *CachedView) GetStats() CacheStats {
	hits, misses := v.hits.Load(), v.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total) * 100
	}
	return CacheStats{
		Size:    v.cache.Len(),
		Hits:    hits,
		Misses:  misses,
		HitRate: rate,
	}
}
