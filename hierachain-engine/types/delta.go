package types

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// Delta application errors.
var (
	ErrDeltaOverflow      = errors.New("delta application overflows limit")
	ErrDeltaUnderflow     = errors.New("delta application underflows zero")
	ErrDeltaLimitMismatch = errors.New("deltas with different limits on one key")
)

// DeltaOp is a commutative bounded add/subtract applied to a numeric value
// without knowing it. Amount is a signed two's complement value. MaxPositive
// and MinNegative are the largest excursions above and below the unknown base
// observed while the delta was built; Apply rejects a base for which any of
// those intermediate values would have left [0, Limit].
type DeltaOp struct {
	Amount      uint256.Int
	MaxPositive uint256.Int
	MinNegative uint256.Int
	Limit       uint256.Int
}

// AdditionDelta returns a delta adding v under limit.
func AdditionDelta(v, limit *uint256.Int) DeltaOp {
	var d DeltaOp
	d.Amount.Set(v)
	d.MaxPositive.Set(v)
	d.Limit.Set(limit)
	return d
}

// SubtractionDelta returns a delta subtracting v under limit.
func SubtractionDelta(v, limit *uint256.Int) DeltaOp {
	var d DeltaOp
	d.Amount.Neg(v)
	d.MinNegative.Set(v)
	d.Limit.Set(limit)
	return d
}

// IsNegative reports whether the net amount is below zero.
func (d DeltaOp) IsNegative() bool {
	return d.Amount.Sign() < 0
}

// Then composes d with next, where next was produced by a later transaction.
func (d DeltaOp) Then(next DeltaOp) (DeltaOp, error) {
	if !d.Limit.Eq(&next.Limit) {
		return DeltaOp{}, fmt.Errorf("%w: %s vs %s", ErrDeltaLimitMismatch, d.Limit.Dec(), next.Limit.Dec())
	}

	var out DeltaOp
	out.Limit.Set(&d.Limit)
	out.Amount.Add(&d.Amount, &next.Amount)

	var shiftedMax uint256.Int
	shiftedMax.Add(&d.Amount, &next.MaxPositive)
	out.MaxPositive.Set(signedMax(&d.MaxPositive, &shiftedMax))

	var shiftedMin uint256.Int
	shiftedMin.Sub(&next.MinNegative, &d.Amount)
	out.MinNegative.Set(signedMax(&d.MinNegative, &shiftedMin))
	return out, nil
}

// Apply folds the delta onto base.
func (d DeltaOp) Apply(base *uint256.Int) (*uint256.Int, error) {
	var peak uint256.Int
	peak.Add(base, &d.MaxPositive)
	if peak.Gt(&d.Limit) {
		return nil, fmt.Errorf("%w: base %s + %s > %s", ErrDeltaOverflow, base.Dec(), d.MaxPositive.Dec(), d.Limit.Dec())
	}
	if base.Lt(&d.MinNegative) {
		return nil, fmt.Errorf("%w: base %s < %s", ErrDeltaUnderflow, base.Dec(), d.MinNegative.Dec())
	}
	return new(uint256.Int).Add(base, &d.Amount), nil
}

// Equal reports whether two deltas are identical including history.
func (d DeltaOp) Equal(o DeltaOp) bool {
	return d.Amount.Eq(&o.Amount) &&
		d.MaxPositive.Eq(&o.MaxPositive) &&
		d.MinNegative.Eq(&o.MinNegative) &&
		d.Limit.Eq(&o.Limit)
}

func (d DeltaOp) String() string {
	if d.IsNegative() {
		var abs uint256.Int
		abs.Neg(&d.Amount)
		return "-" + abs.Dec()
	}
	return "+" + d.Amount.Dec()
}

func signedMax(a, b *uint256.Int) *uint256.Int {
	if b.Sgt(a) {
		return b
	}
	return a
}
