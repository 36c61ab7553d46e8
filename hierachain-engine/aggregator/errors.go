package aggregator

import (
	"errors"
	"fmt"

	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/types"
)

// Common errors for aggregator operations
var (
	ErrOverflow    = errors.New("aggregator overflow")
	ErrUnderflow   = errors.New("aggregator underflow")
	ErrBaseMissing = errors.New("aggregator base value missing")
	ErrResolve     = errors.New("aggregator resolve failed")
	ErrDestroyed   = errors.New("aggregator destroyed")
)

// Error is the extension error raised by aggregator operations. Executors
// turn it into a transaction-local failure.
type Error struct {
	ID  types.AggregatorID
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("aggregator %s: %v", e.ID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(id types.AggregatorID, err error) error {
	return &Error{ID: id, Err: err}
}
