package data

import (
	"reflect"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/core"
	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/types"
	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/vm"
)

func TestTransactionSchema(t *testing.T) {
	schema := TransactionSchema()

	if schema.NumFields() != 2 {
		t.Errorf("Expected 2 fields, got %d", schema.NumFields())
	}
	if schema.Field(0).Name != "id" {
		t.Errorf("Expected field 0 to be 'id', got %s", schema.Field(0).Name)
	}
	if schema.Field(1).Type.ID() != arrow.LIST {
		t.Errorf("Expected 'ops' to be List type, got %s", schema.Field(1).Type.ID())
	}
}

func TestResultSchema(t *testing.T) {
	schema := ResultSchema("parallel")

	expectedNames := []string{"index", "status", "failure", "writes", "module_writes", "events"}
	if schema.NumFields() != len(expectedNames) {
		t.Fatalf("Expected %d fields, got %d", len(expectedNames), schema.NumFields())
	}
	for i, name := range expectedNames {
		if schema.Field(i).Name != name {
			t.Errorf("Field %d: expected %s, got %s", i, name, schema.Field(i).Name)
		}
	}

	md := schema.Metadata()
	if i := md.FindKey(MetaMode); i < 0 || md.Values()[i] != "parallel" {
		t.Errorf("Expected mode metadata 'parallel', got %v", md)
	}
	if ResultSchema("").Metadata().Len() != 0 {
		t.Error("Expected no metadata for empty mode")
	}
}

func sampleBlock() []*vm.Transaction {
	return []*vm.Transaction{
		{ID: "tx-0", Ops: []vm.Op{
			{Kind: vm.OpTransfer, Key: "acct/0", To: "acct/1", Amount: 5},
			{Kind: vm.OpAggAdd, Handle: vm.SupplyHandle, Key: vm.SupplyKey, Amount: 5, Limit: vm.SupplyLimit},
		}},
		{ID: "tx-1", Ops: []vm.Op{}},
		{ID: "tx-2", Ops: []vm.Op{
			{Kind: vm.OpPublishModule, Key: "m", Data: []byte("code")},
			{Kind: vm.OpSet, Key: "empty", Data: []byte{}},
		}},
	}
}

func TestTransactionsRoundTrip(t *testing.T) {
	c := NewConverter()
	txns := sampleBlock()

	record, err := c.TransactionsToRecord(txns)
	if err != nil {
		t.Fatalf("Failed to convert to Arrow: %v", err)
	}
	defer record.Release()

	if record.NumRows() != 3 {
		t.Errorf("Expected 3 rows, got %d", record.NumRows())
	}

	got, err := c.RecordToTransactions(record)
	if err != nil {
		t.Fatalf("Failed to convert back: %v", err)
	}
	if !reflect.DeepEqual(txns, got) {
		t.Errorf("Round trip mismatch:\n got %+v\nwant %+v", got, txns)
	}
}

func TestTransactionsToRecordErrors(t *testing.T) {
	c := NewConverter()
	if _, err := c.TransactionsToRecord(nil); err != ErrEmptyBlock {
		t.Errorf("Expected ErrEmptyBlock, got %v", err)
	}
	if _, err := c.TransactionsToRecord([]*vm.Transaction{nil}); err == nil {
		t.Error("Expected error for nil transaction")
	}
}

func TestBlockOutputRoundTrip(t *testing.T) {
	c := NewConverter()
	out := &core.BlockOutput{
		Mode: core.ModeParallelNoDeltas,
		Results: []core.TxnResult{
			{
				Index:  0,
				Writes: []types.WriteOp{{Key: "a", Value: []byte{1}}, {Key: "b", Deleted: true}},
				Events: []types.Event{{Type: "emit", Data: []byte("x")}},
				Status: types.Keep(),
			},
			{
				Index:        1,
				ModuleWrites: []types.ModuleWrite{{ID: "m", Code: []byte("code")}},
				Status:       types.KeepFailed("insufficient balance"),
			},
			{Index: 2, Status: types.Retry()},
		},
	}

	record, err := c.BlockOutputToRecord(out)
	if err != nil {
		t.Fatalf("Failed to convert to Arrow: %v", err)
	}
	defer record.Release()

	results, mode, err := c.RecordToResults(record)
	if err != nil {
		t.Fatalf("Failed to convert back: %v", err)
	}
	if mode != "parallel_no_deltas" {
		t.Errorf("Expected mode parallel_no_deltas, got %s", mode)
	}
	if !reflect.DeepEqual(out.Results, results) {
		t.Errorf("Round trip mismatch:\n got %+v\nwant %+v", results, out.Results)
	}
}

func TestIPCRoundTrip(t *testing.T) {
	c := NewConverter()
	codec := NewIPCCodec()

	record, err := c.TransactionsToRecord(sampleBlock())
	if err != nil {
		t.Fatalf("Failed to create record: %v", err)
	}
	defer record.Release()

	payload, err := codec.Serialize(record)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	decoded, err := codec.Deserialize(payload, TransactionSchema())
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	defer decoded.Release()

	got, err := c.RecordToTransactions(decoded)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if !reflect.DeepEqual(sampleBlock(), got) {
		t.Errorf("IPC round trip mismatch: %+v", got)
	}

	// The wrong schema is rejected by the reader.
	if _, err := codec.Deserialize(payload, ResultSchema("")); err == nil {
		t.Error("Expected schema mismatch error")
	}
	if _, err := codec.Deserialize([]byte("not arrow"), nil); err == nil {
		t.Error("Expected error for garbage input")
	}
	if _, err := codec.Serialize(); err != ErrNoRecords {
		t.Errorf("Expected ErrNoRecords, got %v", err)
	}
}

func TestValidateSchema(t *testing.T) {
	c := NewConverter()

	record, err := c.TransactionsToRecord(sampleBlock())
	if err != nil {
		t.Fatalf("Failed to create record: %v", err)
	}
	defer record.Release()

	if err := ValidateSchema(record, TransactionSchema()); err != nil {
		t.Errorf("Validation should pass: %v", err)
	}
	if err := ValidateSchema(record, ResultSchema("")); err == nil {
		t.Error("Validation should fail with wrong schema")
	}
	if _, _, err := c.RecordToResults(record); err == nil {
		t.Error("RecordToResults should reject a transaction record")
	}
}
