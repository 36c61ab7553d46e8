package aggregator

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/types"
)

type mapResolver map[types.AggregatorID][]byte

func (m mapResolver) Resolve(handle, key string) ([]byte, error) {
	return m[types.AggregatorID{Handle: handle, Key: key}], nil
}

type failingResolver struct{ err error }

func (f failingResolver) Resolve(string, string) ([]byte, error) { return nil, f.err }

var u = types.U128

func id(key string) types.AggregatorID { return types.AggregatorID{Handle: "h", Key: key} }

func TestOverflowExample(t *testing.T) {
	d := NewData()
	a := d.Create(id("a"), u(1000))

	require.NoError(t, a.Add(u(400)))
	err := a.Add(u(601))
	require.ErrorIs(t, err, ErrOverflow)
	assert.Equal(t, uint64(400), a.Value().Uint64())

	var aggErr *Error
	require.True(t, errors.As(err, &aggErr))
	assert.Equal(t, id("a"), aggErr.ID)
}

func TestLifecycleExample(t *testing.T) {
	d := NewData()
	r := mapResolver{}
	a := d.Create(id("x"), u(1500))
	assert.Equal(t, StateData, a.State())
	assert.True(t, a.Value().IsZero())

	require.NoError(t, a.Add(u(400)))

	v, err := a.ReadAndMaterialize(r)
	require.NoError(t, err)
	assert.Equal(t, uint64(400), v.Uint64())
	v, err = a.ReadAndMaterialize(r)
	require.NoError(t, err)
	assert.Equal(t, uint64(400), v.Uint64())

	require.NoError(t, a.Add(u(500)))
	assert.Equal(t, uint64(900), a.Value().Uint64())

	// materialize then add
	_, err = a.ReadAndMaterialize(r)
	require.NoError(t, err)
	require.NoError(t, a.Add(u(600)))
	assert.Equal(t, uint64(1500), a.Value().Uint64())

	// materialize then sub
	_, err = a.ReadAndMaterialize(r)
	require.NoError(t, err)
	require.NoError(t, a.Sub(u(600)))
	assert.Equal(t, uint64(900), a.Value().Uint64())

	// sub then add
	require.NoError(t, a.Sub(u(200)))
	require.NoError(t, a.Add(u(300)))
	assert.Equal(t, uint64(1000), a.Value().Uint64())

	// add then materialize
	require.ErrorIs(t, a.Add(u(501)), ErrOverflow)
	v, err = a.ReadAndMaterialize(r)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), v.Uint64())

	d.Remove(id("x"))
	_, err = d.Get(id("x"), u(1500))
	require.NoError(t, err, "created and removed in one transaction leaves no trace")
}

func TestDestroyedAggregator(t *testing.T) {
	d := NewData()
	_, err := d.Get(id("old"), u(10))
	require.NoError(t, err)
	d.Remove(id("old"))

	_, err = d.Get(id("old"), u(10))
	require.ErrorIs(t, err, ErrDestroyed)
	assert.NotErrorIs(t, err, ErrOverflow)

	eff := d.Effects()
	require.Len(t, eff.Writes, 1)
	assert.True(t, eff.Writes[0].Deleted)
	assert.Equal(t, id("old").StateKey(), eff.Writes[0].Key)
}

func TestSubOnDeltaPanics(t *testing.T) {
	d := NewData()
	a, err := d.Get(id("a"), u(10))
	require.NoError(t, err)
	assert.Equal(t, StatePositiveDelta, a.State())
	assert.Panics(t, func() { _ = a.Sub(u(1)) })
}

func TestUnderflow(t *testing.T) {
	a := NewData().Create(id("a"), u(10))
	require.NoError(t, a.Add(u(3)))
	require.ErrorIs(t, a.Sub(u(4)), ErrUnderflow)
	assert.Equal(t, uint64(3), a.Value().Uint64())
}

func TestReadAndMaterialize(t *testing.T) {
	t.Run("folds base", func(t *testing.T) {
		d := NewData()
		a, _ := d.Get(id("a"), u(100))
		require.NoError(t, a.Add(u(30)))

		v, err := a.ReadAndMaterialize(mapResolver{id("a"): types.EncodeU128(u(50))})
		require.NoError(t, err)
		assert.Equal(t, uint64(80), v.Uint64())
		assert.Equal(t, StateData, a.State())
	})

	t.Run("overflow against base", func(t *testing.T) {
		d := NewData()
		a, _ := d.Get(id("a"), u(100))
		require.NoError(t, a.Add(u(30)))

		_, err := a.ReadAndMaterialize(mapResolver{id("a"): types.EncodeU128(u(71))})
		require.ErrorIs(t, err, ErrOverflow)
		assert.Equal(t, StatePositiveDelta, a.State())
	})

	t.Run("missing base", func(t *testing.T) {
		a, _ := NewData().Get(id("a"), u(100))
		_, err := a.ReadAndMaterialize(mapResolver{})
		require.ErrorIs(t, err, ErrBaseMissing)
	})

	t.Run("resolver error", func(t *testing.T) {
		io := errors.New("disk gone")
		a, _ := NewData().Get(id("a"), u(100))
		_, err := a.ReadAndMaterialize(failingResolver{err: io})
		require.ErrorIs(t, err, ErrResolve)
		require.ErrorIs(t, err, io)
	})

	t.Run("bad encoding", func(t *testing.T) {
		a, _ := NewData().Get(id("a"), u(100))
		_, err := a.ReadAndMaterialize(mapResolver{id("a"): []byte{1}})
		require.ErrorIs(t, err, ErrResolve)
	})
}

func TestEffects(t *testing.T) {
	d := NewData()
	limit := u(1 << 20)

	created := d.Create(id("c"), limit)
	require.NoError(t, created.Add(u(7)))

	delta, _ := d.Get(id("b"), limit)
	require.NoError(t, delta.Add(u(5)))

	_, _ = d.Get(id("untouched"), limit)

	_, _ = d.Get(id("gone"), limit)
	d.Remove(id("gone"))

	eff := d.Effects()
	require.Len(t, eff.Deltas, 1)
	assert.Equal(t, id("b").StateKey(), eff.Deltas[0].Key)
	assert.True(t, eff.Deltas[0].Op.Equal(types.AdditionDelta(u(5), limit)))

	require.Len(t, eff.Writes, 2)
	assert.Equal(t, id("c").StateKey(), eff.Writes[0].Key)
	assert.Equal(t, types.EncodeU128(u(7)), eff.Writes[0].Value)
	assert.Equal(t, id("gone").StateKey(), eff.Writes[1].Key)
	assert.True(t, eff.Writes[1].Deleted)
}

func TestMaterializeAll(t *testing.T) {
	d := NewData()
	limit := uint256.NewInt(1000)
	a, _ := d.Get(id("a"), limit)
	b, _ := d.Get(id("b"), limit)
	require.NoError(t, a.Add(u(1)))
	require.NoError(t, b.Add(u(2)))

	r := mapResolver{
		id("a"): types.EncodeU128(u(10)),
		id("b"): types.EncodeU128(u(20)),
	}
	require.NoError(t, d.MaterializeAll(r))

	eff := d.Effects()
	assert.Empty(t, eff.Deltas)
	require.Len(t, eff.Writes, 2)
	assert.Equal(t, types.EncodeU128(u(11)), eff.Writes[0].Value)
	assert.Equal(t, types.EncodeU128(u(22)), eff.Writes[1].Value)
}

func TestForget(t *testing.T) {
	d := NewData()
	limit := uint256.NewInt(1000)
	a, _ := d.Get(id("a"), limit)
	require.NoError(t, a.Add(u(3)))
	d.Create(id("b"), limit)
	d.Remove(id("c"))

	for _, key := range []string{"a", "b", "c"} {
		d.Forget(id(key).StateKey())
	}
	eff := d.Effects()
	assert.Empty(t, eff.Deltas)
	assert.Empty(t, eff.Writes)

	_, err := d.Get(id("c"), limit)
	require.NoError(t, err)
}
