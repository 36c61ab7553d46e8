package types

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestU128RoundTrip(t *testing.T) {
	for _, v := range []*uint256.Int{U128(0), U128(1), U128(1 << 62), MaxU128} {
		got, err := DecodeU128(EncodeU128(v))
		require.NoError(t, err)
		require.True(t, got.Eq(v), "want %s got %s", v.Dec(), got.Dec())
	}

	_, err := DecodeU128([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrInvalidU128)
}

func TestDeltaApply(t *testing.T) {
	limit := U128(100)

	add := AdditionDelta(U128(30), limit)
	v, err := add.Apply(U128(70))
	require.NoError(t, err)
	require.Equal(t, uint64(100), v.Uint64())

	_, err = add.Apply(U128(71))
	require.ErrorIs(t, err, ErrDeltaOverflow)

	sub := SubtractionDelta(U128(30), limit)
	v, err = sub.Apply(U128(30))
	require.NoError(t, err)
	require.True(t, v.IsZero())

	_, err = sub.Apply(U128(29))
	require.ErrorIs(t, err, ErrDeltaUnderflow)
}

func TestDeltaThenKeepsHistory(t *testing.T) {
	limit := U128(100)

	// +50 then -50: the net is zero but the intermediate value needs
	// base+50 <= limit.
	d, err := AdditionDelta(U128(50), limit).Then(SubtractionDelta(U128(50), limit))
	require.NoError(t, err)
	require.True(t, d.Amount.IsZero())
	require.Equal(t, uint64(50), d.MaxPositive.Uint64())
	require.True(t, d.MinNegative.IsZero())

	_, err = d.Apply(U128(51))
	require.ErrorIs(t, err, ErrDeltaOverflow)
	v, err := d.Apply(U128(50))
	require.NoError(t, err)
	require.Equal(t, uint64(50), v.Uint64())

	// -20 then +30: requires base >= 20.
	d, err = SubtractionDelta(U128(20), limit).Then(AdditionDelta(U128(30), limit))
	require.NoError(t, err)
	require.Equal(t, "+10", d.String())
	require.Equal(t, uint64(20), d.MinNegative.Uint64())
	require.Equal(t, uint64(10), d.MaxPositive.Uint64())

	_, err = d.Apply(U128(19))
	require.ErrorIs(t, err, ErrDeltaUnderflow)
}

func TestDeltaThenMatchesSequentialApplication(t *testing.T) {
	limit := U128(1000)
	ops := []DeltaOp{
		AdditionDelta(U128(400), limit),
		SubtractionDelta(U128(100), limit),
		AdditionDelta(U128(650), limit),
		SubtractionDelta(U128(900), limit),
	}

	for base := uint64(0); base <= 1000; base += 7 {
		// Apply one by one.
		cur := U128(base)
		var seqErr error
		for _, op := range ops {
			cur, seqErr = op.Apply(cur)
			if seqErr != nil {
				break
			}
		}

		// Fold first, apply once.
		folded := ops[0]
		for _, op := range ops[1:] {
			var err error
			folded, err = folded.Then(op)
			require.NoError(t, err)
		}
		got, err := folded.Apply(U128(base))

		if seqErr != nil {
			require.Error(t, err, "base %d", base)
			continue
		}
		require.NoError(t, err, "base %d", base)
		require.True(t, got.Eq(cur), "base %d: want %s got %s", base, cur.Dec(), got.Dec())
	}
}

func TestDeltaLimitMismatch(t *testing.T) {
	_, err := AdditionDelta(U128(1), U128(10)).Then(AdditionDelta(U128(1), U128(11)))
	require.ErrorIs(t, err, ErrDeltaLimitMismatch)
}

func FuzzDeltaThen(f *testing.F) {
	f.Add(uint64(10), uint64(5), uint64(3), true, false)
	f.Add(uint64(0), uint64(100), uint64(100), false, true)

	f.Fuzz(func(t *testing.T, base, a, b uint64, aNeg, bNeg bool) {
		limit := U128(1 << 40)
		mk := func(v uint64, neg bool) DeltaOp {
			v %= 1 << 32
			if neg {
				return SubtractionDelta(U128(v), limit)
			}
			return AdditionDelta(U128(v), limit)
		}
		base %= 1 << 33
		da, db := mk(a, aNeg), mk(b, bNeg)

		mid, err1 := da.Apply(U128(base))
		var seq *uint256.Int
		var err2 error
		if err1 == nil {
			seq, err2 = db.Apply(mid)
		}

		folded, err := da.Then(db)
		if err != nil {
			t.Fatal(err)
		}
		got, err := folded.Apply(U128(base))
		if (err1 != nil || err2 != nil) != (err != nil) {
			t.Fatalf("fold disagreement: seq=%v/%v folded=%v", err1, err2, err)
		}
		if err == nil && !got.Eq(seq) {
			t.Fatalf("want %s got %s", seq.Dec(), got.Dec())
		}
	})
}
