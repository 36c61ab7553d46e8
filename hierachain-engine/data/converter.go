package data

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/core"
	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/types"
	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/vm"
)

// ErrEmptyBlock is returned when converting a block without transactions.
var ErrEmptyBlock = errors.New("empty transaction slice")

// Converter converts between engine values and Arrow records.
type Converter struct {
	allocator memory.Allocator
}

// NewConverter creates a new Converter with the default memory allocator.
func NewConverter() *Converter {
	return &Converter{allocator: memory.DefaultAllocator}
}

// NewConverterWithAllocator creates a Converter with a custom allocator.
func NewConverterWithAllocator(mem memory.Allocator) *Converter {
	return &Converter{allocator: mem}
}

// TransactionsToRecord converts a block of transactions to an Arrow record.
func (c *Converter) TransactionsToRecord(txns []*vm.Transaction) (arrow.Record, error) {
	if len(txns) == 0 {
		return nil, ErrEmptyBlock
	}

	builder := array.NewRecordBuilder(c.allocator, TransactionSchema())
	defer builder.Release()

	idBuilder := builder.Field(0).(*array.StringBuilder)
	opsBuilder := builder.Field(1).(*array.ListBuilder)
	opBuilder := opsBuilder.ValueBuilder().(*array.StructBuilder)

	kindB := opBuilder.FieldBuilder(0).(*array.StringBuilder)
	keyB := opBuilder.FieldBuilder(1).(*array.StringBuilder)
	toB := opBuilder.FieldBuilder(2).(*array.StringBuilder)
	handleB := opBuilder.FieldBuilder(3).(*array.StringBuilder)
	amountB := opBuilder.FieldBuilder(4).(*array.Uint64Builder)
	limitB := opBuilder.FieldBuilder(5).(*array.Uint64Builder)
	dataB := opBuilder.FieldBuilder(6).(*array.BinaryBuilder)

	for i, txn := range txns {
		if txn == nil {
			return nil, fmt.Errorf("transaction %d is nil", i)
		}
		idBuilder.Append(txn.ID)
		opsBuilder.Append(true)
		for _, op := range txn.Ops {
			opBuilder.Append(true)
			kindB.Append(string(op.Kind))
			appendOptString(keyB, op.Key)
			appendOptString(toB, op.To)
			appendOptString(handleB, op.Handle)
			amountB.Append(op.Amount)
			limitB.Append(op.Limit)
			appendOptBinary(dataB, op.Data)
		}
	}

	return builder.NewRecord(), nil
}

// RecordToTransactions converts an Arrow record back to transactions.
func (c *Converter) RecordToTransactions(record arrow.Record) ([]*vm.Transaction, error) {
	if err := ValidateSchema(record, TransactionSchema()); err != nil {
		return nil, err
	}

	ids, err := column[*array.String](record, 0)
	if err != nil {
		return nil, err
	}
	lists, err := column[*array.List](record, 1)
	if err != nil {
		return nil, err
	}
	ops, ok := lists.ListValues().(*array.Struct)
	if !ok {
		return nil, errors.New("ops values are not a Struct array")
	}

	kinds, err1 := field[*array.String](ops, 0)
	keys, err2 := field[*array.String](ops, 1)
	tos, err3 := field[*array.String](ops, 2)
	handles, err4 := field[*array.String](ops, 3)
	amounts, err5 := field[*array.Uint64](ops, 4)
	limits, err6 := field[*array.Uint64](ops, 5)
	payloads, err7 := field[*array.Binary](ops, 6)
	if err := errors.Join(err1, err2, err3, err4, err5, err6, err7); err != nil {
		return nil, err
	}

	n := int(record.NumRows())
	txns := make([]*vm.Transaction, n)
	for i := 0; i < n; i++ {
		start, end := lists.ValueOffsets(i)
		if start < 0 || end > int64(ops.Len()) || start > end {
			return nil, fmt.Errorf("row %d: ops offsets [%d, %d) out of bounds", i, start, end)
		}
		txn := &vm.Transaction{ID: ids.Value(i), Ops: make([]vm.Op, 0, end-start)}
		for j := int(start); j < int(end); j++ {
			txn.Ops = append(txn.Ops, vm.Op{
				Kind:   vm.OpKind(kinds.Value(j)),
				Key:    optString(keys, j),
				To:     optString(tos, j),
				Handle: optString(handles, j),
				Amount: amounts.Value(j),
				Limit:  limits.Value(j),
				Data:   optBinary(payloads, j),
			})
		}
		txns[i] = txn
	}
	return txns, nil
}

// BlockOutputToRecord converts a committed block output to an Arrow record.
// An empty block yields a record with zero rows.
func (c *Converter) BlockOutputToRecord(out *core.BlockOutput) (arrow.Record, error) {
	if out == nil {
		return nil, errors.New("block output is nil")
	}

	builder := array.NewRecordBuilder(c.allocator, ResultSchema(out.Mode.String()))
	defer builder.Release()

	indexB := builder.Field(0).(*array.Uint32Builder)
	statusB := builder.Field(1).(*array.StringBuilder)
	failureB := builder.Field(2).(*array.StringBuilder)

	writesB := builder.Field(3).(*array.ListBuilder)
	writeB := writesB.ValueBuilder().(*array.StructBuilder)
	wKeyB := writeB.FieldBuilder(0).(*array.StringBuilder)
	wValueB := writeB.FieldBuilder(1).(*array.BinaryBuilder)
	wDeletedB := writeB.FieldBuilder(2).(*array.BooleanBuilder)

	modsB := builder.Field(4).(*array.ListBuilder)
	modB := modsB.ValueBuilder().(*array.StructBuilder)
	mIDB := modB.FieldBuilder(0).(*array.StringBuilder)
	mCodeB := modB.FieldBuilder(1).(*array.BinaryBuilder)

	eventsB := builder.Field(5).(*array.ListBuilder)
	eventB := eventsB.ValueBuilder().(*array.StructBuilder)
	eTypeB := eventB.FieldBuilder(0).(*array.StringBuilder)
	eDataB := eventB.FieldBuilder(1).(*array.BinaryBuilder)

	for _, r := range out.Results {
		indexB.Append(r.Index)
		statusB.Append(r.Status.Kind.String())
		appendOptString(failureB, r.Status.Failure)

		writesB.Append(true)
		for _, w := range r.Writes {
			writeB.Append(true)
			wKeyB.Append(string(w.Key))
			appendOptBinary(wValueB, w.Value)
			wDeletedB.Append(w.Deleted)
		}

		modsB.Append(true)
		for _, m := range r.ModuleWrites {
			modB.Append(true)
			mIDB.Append(string(m.ID))
			appendOptBinary(mCodeB, m.Code)
		}

		eventsB.Append(true)
		for _, e := range r.Events {
			eventB.Append(true)
			eTypeB.Append(e.Type)
			appendOptBinary(eDataB, e.Data)
		}
	}

	return builder.NewRecord(), nil
}

// RecordToResults converts a result record back to transaction results and
// the execution mode named in its metadata.
func (c *Converter) RecordToResults(record arrow.Record) ([]core.TxnResult, string, error) {
	if err := ValidateSchema(record, ResultSchema("")); err != nil {
		return nil, "", err
	}

	var mode string
	if md := record.Schema().Metadata(); md.Len() > 0 {
		if i := md.FindKey(MetaMode); i >= 0 {
			mode = md.Values()[i]
		}
	}

	indexes, err1 := column[*array.Uint32](record, 0)
	statuses, err2 := column[*array.String](record, 1)
	failures, err3 := column[*array.String](record, 2)
	writeLists, err4 := column[*array.List](record, 3)
	modLists, err5 := column[*array.List](record, 4)
	eventLists, err6 := column[*array.List](record, 5)
	if err := errors.Join(err1, err2, err3, err4, err5, err6); err != nil {
		return nil, "", err
	}

	writes, ok1 := writeLists.ListValues().(*array.Struct)
	mods, ok2 := modLists.ListValues().(*array.Struct)
	events, ok3 := eventLists.ListValues().(*array.Struct)
	if !ok1 || !ok2 || !ok3 {
		return nil, "", errors.New("result lists are not Struct arrays")
	}

	wKeys, err1 := field[*array.String](writes, 0)
	wValues, err2 := field[*array.Binary](writes, 1)
	wDeleted, err3 := field[*array.Boolean](writes, 2)
	mIDs, err4 := field[*array.String](mods, 0)
	mCodes, err5 := field[*array.Binary](mods, 1)
	eTypes, err6 := field[*array.String](events, 0)
	eData, err7 := field[*array.Binary](events, 1)
	if err := errors.Join(err1, err2, err3, err4, err5, err6, err7); err != nil {
		return nil, "", err
	}

	n := int(record.NumRows())
	results := make([]core.TxnResult, n)
	for i := 0; i < n; i++ {
		status, err := parseStatus(statuses.Value(i), optString(failures, i))
		if err != nil {
			return nil, "", fmt.Errorf("row %d: %w", i, err)
		}
		r := core.TxnResult{Index: indexes.Value(i), Status: status}

		start, end := writeLists.ValueOffsets(i)
		if start < end {
			r.Writes = make([]types.WriteOp, 0, end-start)
		}
		for j := int(start); j < int(end); j++ {
			r.Writes = append(r.Writes, types.WriteOp{
				Key:     types.StateKey(wKeys.Value(j)),
				Value:   optBinary(wValues, j),
				Deleted: wDeleted.Value(j),
			})
		}

		start, end = modLists.ValueOffsets(i)
		for j := int(start); j < int(end); j++ {
			r.ModuleWrites = append(r.ModuleWrites, types.ModuleWrite{
				ID:   types.ModuleID(mIDs.Value(j)),
				Code: optBinary(mCodes, j),
			})
		}

		start, end = eventLists.ValueOffsets(i)
		for j := int(start); j < int(end); j++ {
			r.Events = append(r.Events, types.Event{Type: eTypes.Value(j), Data: optBinary(eData, j)})
		}
		results[i] = r
	}
	return results, mode, nil
}

// TransactionsFromJSON decodes a JSON array of transactions.
func TransactionsFromJSON(jsonData []byte) ([]*vm.Transaction, error) {
	var txns []*vm.Transaction
	if err := json.Unmarshal(jsonData, &txns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return txns, nil
}

// JSONToRecord converts a JSON array of transactions to an Arrow record.
func (c *Converter) JSONToRecord(jsonData []byte) (arrow.Record, error) {
	txns, err := TransactionsFromJSON(jsonData)
	if err != nil {
		return nil, err
	}
	return c.TransactionsToRecord(txns)
}

// ValidateSchema checks if a record matches the expected schema. Metadata
// is not compared.
func ValidateSchema(record arrow.Record, expected *arrow.Schema) error {
	if record == nil {
		return errors.New("record is nil")
	}

	actual := record.Schema()
	if actual.NumFields() != expected.NumFields() {
		return fmt.Errorf("field count mismatch: got %d, expected %d",
			actual.NumFields(), expected.NumFields())
	}

	for i := 0; i < actual.NumFields(); i++ {
		actualField := actual.Field(i)
		expectedField := expected.Field(i)

		if actualField.Name != expectedField.Name {
			return fmt.Errorf("field %d name mismatch: got %s, expected %s",
				i, actualField.Name, expectedField.Name)
		}

		if !arrow.TypeEqual(actualField.Type, expectedField.Type) {
			return fmt.Errorf("field %s type mismatch: got %s, expected %s",
				actualField.Name, actualField.Type, expectedField.Type)
		}
	}

	return nil
}

func parseStatus(kind, failure string) (types.TxnStatus, error) {
	switch kind {
	case types.StatusKeep.String():
		return types.TxnStatus{Kind: types.StatusKeep, Failure: failure}, nil
	case types.StatusDiscard.String():
		return types.TxnStatus{Kind: types.StatusDiscard, Failure: failure}, nil
	case types.StatusRetry.String():
		return types.Retry(), nil
	default:
		return types.TxnStatus{}, fmt.Errorf("unknown status %q", kind)
	}
}

// column returns column i of record as T.
func column[T arrow.Array](record arrow.Record, i int) (T, error) {
	col, ok := record.Column(i).(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("column %d (%s) has type %s", i, record.ColumnName(i), record.Column(i).DataType())
	}
	return col, nil
}

// field returns child i of a struct array as T.
func field[T arrow.Array](s *array.Struct, i int) (T, error) {
	f, ok := s.Field(i).(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("struct field %d has type %s", i, s.Field(i).DataType())
	}
	return f, nil
}

func appendOptString(b *array.StringBuilder, s string) {
	if s == "" {
		b.AppendNull()
		return
	}
	b.Append(s)
}

func appendOptBinary(b *array.BinaryBuilder, v []byte) {
	if v == nil {
		b.AppendNull()
		return
	}
	b.Append(v)
}

func optString(a *array.String, i int) string {
	if a.IsNull(i) {
		return ""
	}
	return a.Value(i)
}

// optBinary copies the value out so it outlives the record.
func optBinary(a *array.Binary, i int) []byte {
	if a.IsNull(i) {
		return nil
	}
	return append([]byte{}, a.Value(i)...)
}
