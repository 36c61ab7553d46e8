package types

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// U128Size is the encoded width of a numeric state value.
const U128Size = 16

// ErrInvalidU128 is returned when a state value is not a valid u128 encoding.
var ErrInvalidU128 = errors.New("invalid u128 encoding")

// MaxU128 is 2^128 - 1.
var MaxU128 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))

// EncodeU128 encodes v as 16 big-endian bytes. Values above MaxU128 are
// truncated to their low 128 bits; callers bound values before encoding.
func EncodeU128(v *uint256.Int) []byte {
	full := v.Bytes32()
	out := make([]byte, U128Size)
	copy(out, full[32-U128Size:])
	return out
}

// DecodeU128 decodes a 16 byte big-endian value.
func DecodeU128(b []byte) (*uint256.Int, error) {
	if len(b) != U128Size {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidU128, len(b))
	}
	return new(uint256.Int).SetBytes(b), nil
}

// U128 is a convenience constructor for small literals.
func U128(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}
