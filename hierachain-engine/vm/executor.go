package vm

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/aggregator"
	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/types"
)

// Transaction failure errors. They abort the transaction but keep it in the
// block.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrCounterOverflow     = errors.New("counter overflow")
	ErrNotNumeric          = errors.New("value is not a u128")
	ErrUnknownOp           = errors.New("unknown operation")
)

// Factory creates reference executors.
type Factory struct{}

// Init implements types.ExecutorFactory.
func (Factory) Init(types.StateView) types.ExecutorTask[*Transaction] {
	return &Executor{}
}

// Executor runs reference transactions. It keeps no state between calls.
type Executor struct{}

// session is the scratch state of one execution.
type session struct {
	view        types.ReadView
	materialize bool

	writes      map[types.StateKey]types.WriteOp
	order       []types.StateKey
	aggs        *aggregator.Data
	modules     []types.ModuleWrite
	events      []types.Event
	reconfigure bool
}

// Execute implements types.ExecutorTask.
func (x *Executor) Execute(view types.ReadView, txn *Transaction, _ types.TxnIndex, materializeDeltas bool) types.ExecutionStatus {
	s := &session{
		view:        view,
		materialize: materializeDeltas,
		writes:      make(map[types.StateKey]types.WriteOp),
		aggs:        aggregator.NewData(),
	}

	for _, op := range txn.Ops {
		if op.Kind == OpDirectWriteSet && !materializeDeltas {
			return types.DirectWriteSetNotCapable()
		}
		if err := s.apply(op); err != nil {
			return classify(err)
		}
	}
	if materializeDeltas {
		if err := s.aggs.MaterializeAll(s); err != nil {
			return classify(err)
		}
	}

	out := s.output()
	if s.reconfigure {
		return types.SkipRest(out)
	}
	return types.Success(out)
}

// classify maps an execution error to an engine status.
func classify(err error) types.ExecutionStatus {
	if types.IsSpeculative(err) {
		return types.SpeculativeAbort(err)
	}
	var aggErr *aggregator.Error
	if errors.As(err, &aggErr) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrCounterOverflow) ||
		errors.Is(err, ErrNotNumeric) ||
		errors.Is(err, ErrUnknownOp) {
		return types.Success(types.EmptyOutput(types.KeepFailed(err.Error())))
	}
	return types.Abort(err)
}

func (s *session) apply(op Op) error {
	switch op.Kind {
	case OpIncrement:
		return s.adjust(types.StateKey(op.Key), op.Amount, true)
	case OpDecrement:
		return s.adjust(types.StateKey(op.Key), op.Amount, false)
	case OpSet, OpDirectWriteSet:
		value := op.Data
		if value == nil {
			value = types.EncodeU128(types.U128(op.Amount))
		}
		s.write(types.WriteOp{Key: types.StateKey(op.Key), Value: value})
		return nil
	case OpDelete:
		s.write(types.WriteOp{Key: types.StateKey(op.Key), Deleted: true})
		return nil
	case OpTransfer:
		if err := s.adjust(types.StateKey(op.Key), op.Amount, false); err != nil {
			return err
		}
		return s.adjust(types.StateKey(op.To), op.Amount, true)

	case OpAggCreate:
		s.aggs.Create(op.aggregatorID(), types.U128(op.Limit))
		return nil
	case OpAggAdd:
		a, err := s.aggregator(op)
		if err != nil {
			return err
		}
		return a.Add(types.U128(op.Amount))
	case OpAggSub:
		a, err := s.aggregator(op)
		if err != nil {
			return err
		}
		if _, err := a.ReadAndMaterialize(s); err != nil {
			return err
		}
		return a.Sub(types.U128(op.Amount))
	case OpAggRead:
		a, err := s.aggregator(op)
		if err != nil {
			return err
		}
		v, err := a.ReadAndMaterialize(s)
		if err != nil {
			return err
		}
		s.events = append(s.events, types.Event{Type: string(OpAggRead), Data: types.EncodeU128(v)})
		return nil
	case OpAggDestroy:
		s.aggs.Remove(op.aggregatorID())
		return nil

	case OpPublishModule:
		s.modules = append(s.modules, types.ModuleWrite{ID: types.ModuleID(op.Key), Code: op.Data})
		return nil
	case OpReadModule:
		code, err := s.view.GetModule(types.ModuleID(op.Key))
		if err != nil {
			return err
		}
		s.events = append(s.events, types.Event{Type: string(OpReadModule), Data: code})
		return nil

	case OpReconfigure:
		s.reconfigure = true
		return nil
	case OpEmit:
		s.events = append(s.events, types.Event{Type: op.Key, Data: op.Data})
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOp, op.Kind)
	}
}

// read returns the current value of key, seeing this transaction's own
// writes first.
func (s *session) read(key types.StateKey) ([]byte, error) {
	if w, ok := s.writes[key]; ok {
		if w.Deleted {
			return nil, nil
		}
		return w.Value, nil
	}
	return s.view.GetState(key)
}

// Resolve implements types.AggregatorResolver over the session, so an
// aggregator sees plain writes made earlier in the same transaction.
func (s *session) Resolve(handle, key string) ([]byte, error) {
	return s.read(types.AggregatorID{Handle: handle, Key: key}.StateKey())
}

func (s *session) readU128(key types.StateKey) (*uint256.Int, error) {
	raw, err := s.read(key)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return new(uint256.Int), nil
	}
	v, err := types.DecodeU128(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotNumeric, key)
	}
	return v, nil
}

func (s *session) adjust(key types.StateKey, amount uint64, up bool) error {
	cur, err := s.readU128(key)
	if err != nil {
		return err
	}
	delta := types.U128(amount)
	if up {
		cur.Add(cur, delta)
		if cur.Gt(types.MaxU128) {
			return fmt.Errorf("%w: %s", ErrCounterOverflow, key)
		}
	} else {
		if cur.Lt(delta) {
			return fmt.Errorf("%w: %s has %s, needs %d", ErrInsufficientBalance, key, cur.Dec(), amount)
		}
		cur.Sub(cur, delta)
	}
	s.write(types.WriteOp{Key: key, Value: types.EncodeU128(cur)})
	return nil
}

// aggregator loads the aggregator named by op. A key this transaction has
// already written is read back at once, so no delta is stacked on top of it.
func (s *session) aggregator(op Op) (*aggregator.Aggregator, error) {
	id := op.aggregatorID()
	a, err := s.aggs.Get(id, types.U128(op.Limit))
	if err != nil {
		return nil, err
	}
	if _, ok := s.writes[id.StateKey()]; ok {
		if _, err := a.ReadAndMaterialize(s); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// write records a plain write. It replaces any aggregator state kept for
// the same key.
func (s *session) write(w types.WriteOp) {
	s.aggs.Forget(w.Key)
	s.put(w)
}

func (s *session) put(w types.WriteOp) {
	if _, ok := s.writes[w.Key]; !ok {
		s.order = append(s.order, w.Key)
	}
	s.writes[w.Key] = w
}

func (s *session) output() *types.TransactionOutput {
	eff := s.aggs.Effects()
	for _, w := range eff.Writes {
		s.put(w)
	}
	out := &types.TransactionOutput{
		Writes:       make([]types.WriteOp, 0, len(s.writes)),
		Deltas:       eff.Deltas,
		ModuleWrites: s.modules,
		Events:       s.events,
		Status:       types.Keep(),
	}
	for _, key := range s.order {
		out.Writes = append(out.Writes, s.writes[key])
	}
	types.SortWrites(out.Writes)
	return out
}
