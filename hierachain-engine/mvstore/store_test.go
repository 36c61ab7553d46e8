package mvstore

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/types"
)

var limit = types.MaxU128

func add(v uint64) types.DeltaOp { return types.AdditionDelta(types.U128(v), limit) }
func sub(v uint64) types.DeltaOp { return types.SubtractionDelta(types.U128(v), limit) }

func TestFetchUninitialized(t *testing.T) {
	s := New()
	assert.Equal(t, ReadUninitialized, s.Fetch("k", 5).Kind)

	s.Write("k", 5, 0, []byte("v"))
	// Readers never see their own index or anything above.
	assert.Equal(t, ReadUninitialized, s.Fetch("k", 5).Kind)
	assert.Equal(t, ReadUninitialized, s.Fetch("k", 0).Kind)
}

func TestFetchVersioned(t *testing.T) {
	s := New()
	s.Write("k", 2, 0, []byte("a"))
	s.Write("k", 6, 3, []byte("b"))
	s.WriteDeletion("k", 9, 1)

	res := s.Fetch("k", 4)
	require.Equal(t, ReadVersioned, res.Kind)
	assert.Equal(t, types.Version{TxnIndex: 2, Incarnation: 0}, res.Version)
	assert.Equal(t, []byte("a"), res.Value)

	res = s.Fetch("k", 9)
	require.Equal(t, ReadVersioned, res.Kind)
	assert.Equal(t, types.Version{TxnIndex: 6, Incarnation: 3}, res.Version)
	assert.Equal(t, []byte("b"), res.Value)

	res = s.Fetch("k", 100)
	require.Equal(t, ReadVersioned, res.Kind)
	assert.True(t, res.Deleted)
	assert.Equal(t, types.TxnIndex(9), res.Version.TxnIndex)

	// Overwrite at the same index replaces the entry.
	s.Write("k", 6, 4, []byte("c"))
	res = s.Fetch("k", 7)
	assert.Equal(t, types.Incarnation(4), res.Version.Incarnation)
	assert.Equal(t, []byte("c"), res.Value)
}

func TestFoldOrderExample(t *testing.T) {
	s := New()
	s.AddDelta("k", 5, add(10))
	s.AddDelta("k", 8, add(20))

	res := s.Fetch("k", 10)
	require.Equal(t, ReadUnresolved, res.Kind)
	assert.Equal(t, "+30", res.Delta.String())

	s.ProvideBaseValue("k", types.U128(10))
	v, err := s.MaterializeDelta("k", 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), v.Uint64())

	res = s.Fetch("k", 10)
	require.Equal(t, ReadResolved, res.Kind)
	assert.Equal(t, uint64(40), res.Resolved.Uint64())

	// The shortcut short-circuits the walk: the lower delta is no longer
	// visited.
	c := s.lookup("k")
	visited := 0
	c.entries.Descend(&entry{idx: 9}, func(e *entry) bool {
		visited++
		return e.shortcut == nil
	})
	assert.Equal(t, 1, visited)
}

func TestFetchDeltaOverWrite(t *testing.T) {
	s := New()
	s.Write("k", 1, 0, types.EncodeU128(types.U128(100)))
	s.AddDelta("k", 3, sub(30))
	s.AddDelta("k", 4, add(5))

	res := s.Fetch("k", 5)
	require.Equal(t, ReadResolved, res.Kind)
	assert.Equal(t, uint64(75), res.Resolved.Uint64())

	res = s.Fetch("k", 4)
	require.Equal(t, ReadResolved, res.Kind)
	assert.Equal(t, uint64(70), res.Resolved.Uint64())
}

func TestFetchDeltaFailures(t *testing.T) {
	t.Run("underflow against base", func(t *testing.T) {
		s := New()
		s.ProvideBaseValue("k", types.U128(5))
		s.AddDelta("k", 1, sub(6))
		res := s.Fetch("k", 2)
		require.Equal(t, ReadDeltaFailure, res.Kind)
		assert.ErrorIs(t, res.Err, types.ErrDeltaUnderflow)
	})

	t.Run("overflow over write", func(t *testing.T) {
		s := New()
		small := types.U128(50)
		s.Write("k", 0, 0, types.EncodeU128(types.U128(40)))
		s.AddDelta("k", 1, types.AdditionDelta(types.U128(11), small))
		res := s.Fetch("k", 2)
		require.Equal(t, ReadDeltaFailure, res.Kind)
		assert.ErrorIs(t, res.Err, types.ErrDeltaOverflow)
	})

	t.Run("delta over deletion", func(t *testing.T) {
		s := New()
		s.WriteDeletion("k", 0, 0)
		s.AddDelta("k", 1, add(1))
		assert.Equal(t, ReadDeltaFailure, s.Fetch("k", 2).Kind)
	})

	t.Run("delta over non numeric", func(t *testing.T) {
		s := New()
		s.Write("k", 0, 0, []byte("not a number"))
		s.AddDelta("k", 1, add(1))
		res := s.Fetch("k", 2)
		require.Equal(t, ReadDeltaFailure, res.Kind)
		assert.ErrorIs(t, res.Err, types.ErrInvalidU128)
	})
}

func TestDependencyExample(t *testing.T) {
	s := New()
	s.Write("k", 10, 0, []byte("v"))
	s.MarkEstimate("k", 10)

	res := s.Fetch("k", 11)
	require.Equal(t, ReadDependency, res.Kind)
	assert.Equal(t, types.TxnIndex(10), res.Blocker)

	s.Delete("k", 10)
	assert.Equal(t, ReadUninitialized, s.Fetch("k", 11).Kind)

	s.Write("k", 3, 1, []byte("low"))
	s.Write("k", 10, 0, []byte("v"))
	s.MarkEstimate("k", 10)
	s.Delete("k", 10)
	res = s.Fetch("k", 11)
	require.Equal(t, ReadVersioned, res.Kind)
	assert.Equal(t, types.TxnIndex(3), res.Version.TxnIndex)
}

func TestEstimateClearedByRewrite(t *testing.T) {
	s := New()
	s.Write("k", 1, 0, []byte("a"))
	s.MarkEstimate("k", 1)
	assert.Equal(t, ReadDependency, s.Fetch("k", 2).Kind)

	s.ClearEstimate("k", 1)
	assert.Equal(t, ReadVersioned, s.Fetch("k", 2).Kind)

	s.MarkEstimate("k", 1)
	s.Write("k", 1, 1, []byte("b"))
	res := s.Fetch("k", 2)
	require.Equal(t, ReadVersioned, res.Kind)
	assert.Equal(t, types.Incarnation(1), res.Version.Incarnation)
}

func TestEstimateBlocksDeltaWalk(t *testing.T) {
	s := New()
	s.ProvideBaseValue("k", types.U128(1))
	s.AddDelta("k", 1, add(1))
	s.AddDelta("k", 2, add(1))
	s.MarkEstimate("k", 1)

	res := s.Fetch("k", 3)
	require.Equal(t, ReadDependency, res.Kind)
	assert.Equal(t, types.TxnIndex(1), res.Blocker)
}

func TestEstimateOnMissingEntryPanics(t *testing.T) {
	s := New()
	assert.Panics(t, func() { s.MarkEstimate("k", 1) })
	s.Write("k", 2, 0, nil)
	assert.Panics(t, func() { s.MarkEstimate("k", 1) })
}

func TestBaseValueIdempotence(t *testing.T) {
	s := New()
	s.ProvideBaseValue("k", types.U128(7))
	assert.NotPanics(t, func() { s.ProvideBaseValue("k", types.U128(7)) })
	assert.Panics(t, func() { s.ProvideBaseValue("k", types.U128(8)) })

	v, ok := s.BaseValue("k")
	require.True(t, ok)
	assert.Equal(t, uint64(7), v.Uint64())

	_, ok = s.BaseValue("other")
	assert.False(t, ok)
}

func TestMaterializeDeltaErrors(t *testing.T) {
	s := New()
	_, err := s.MaterializeDelta("k", 1)
	assert.ErrorIs(t, err, ErrNoDelta)

	s.Write("k", 1, 0, types.EncodeU128(types.U128(1)))
	_, err = s.MaterializeDelta("k", 1)
	assert.ErrorIs(t, err, ErrNoDelta)

	s.AddDelta("m", 2, add(1))
	_, err = s.MaterializeDelta("m", 2)
	assert.ErrorIs(t, err, ErrBaseValueMissing)

	s.ProvideBaseValue("m", types.U128(0))
	s.AddDelta("m", 3, sub(5))
	_, err = s.MaterializeDelta("m", 3)
	assert.ErrorIs(t, err, ErrDeltaApplicationFailure)
}

func TestShortcutInvalidatedByLowerRewrite(t *testing.T) {
	s := New()
	s.ProvideBaseValue("k", types.U128(0))
	s.AddDelta("k", 1, add(1))
	s.AddDelta("k", 2, add(2))

	v, err := s.MaterializeDelta("k", 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), v.Uint64())

	s.AddDelta("k", 1, add(10))
	res := s.Fetch("k", 3)
	require.Equal(t, ReadResolved, res.Kind)
	assert.Equal(t, uint64(12), res.Resolved.Uint64())
}

func TestLen(t *testing.T) {
	s := New()
	for i := 0; i < 100; i++ {
		s.Write(types.StateKey(fmt.Sprintf("key-%d", i)), 0, 0, nil)
	}
	assert.Equal(t, 100, s.Len())
}

func TestConcurrentAccess(t *testing.T) {
	s := New()
	s.ProvideBaseValue("counter", types.U128(0))

	const writers = 16
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			idx := types.TxnIndex(w)
			for i := 0; i < 200; i++ {
				s.AddDelta("counter", idx, add(uint64(w)))
				s.Write(types.StateKey(fmt.Sprintf("w-%d", i%10)), idx, types.Incarnation(i), []byte{byte(i)})
				_ = s.Fetch("counter", idx)
			}
		}(w)
	}
	wg.Wait()

	res := s.Fetch("counter", writers)
	require.Equal(t, ReadResolved, res.Kind)
	// 0 + 1 + ... + 15
	assert.Equal(t, uint64(120), res.Resolved.Uint64())
}

func BenchmarkFetchDeltaChain(b *testing.B) {
	s := New()
	s.ProvideBaseValue("k", types.U128(0))
	for i := 0; i < 1000; i++ {
		s.AddDelta("k", types.TxnIndex(i), add(1))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = s.Fetch("k", 1000)
	}
}
