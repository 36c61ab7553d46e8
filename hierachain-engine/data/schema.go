// Package data provides Apache Arrow schemas for blocks of transactions and
// their committed results. Schemas defined here are the wire format of the
// Arrow endpoint and must stay stable across releases.
package data

import (
	"github.com/apache/arrow-go/v18/arrow"
)

// Schema metadata keys.
const (
	MetaMode = "mode"
)

// opStructFields returns the struct fields of one VM operation.
func opStructFields() []arrow.Field {
	return []arrow.Field{
		{Name: "kind", Type: arrow.BinaryTypes.String},
		{Name: "key", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "to", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "handle", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "amount", Type: arrow.PrimitiveTypes.Uint64},
		{Name: "limit", Type: arrow.PrimitiveTypes.Uint64},
		{Name: "data", Type: arrow.BinaryTypes.Binary, Nullable: true},
	}
}

// TransactionSchema returns the Arrow schema of a block of transactions.
// One row is one transaction; row order is the preset block order.
//
// Fields:
//   - id: string - Transaction identifier
//   - ops: list<struct> - Operations in execution order
func TransactionSchema() *arrow.Schema {
	return arrow.NewSchema(
		[]arrow.Field{
			{Name: "id", Type: arrow.BinaryTypes.String},
			{Name: "ops", Type: arrow.ListOf(arrow.StructOf(opStructFields()...))},
		},
		nil,
	)
}

func writeStructFields() []arrow.Field {
	return []arrow.Field{
		{Name: "key", Type: arrow.BinaryTypes.String},
		{Name: "value", Type: arrow.BinaryTypes.Binary, Nullable: true},
		{Name: "deleted", Type: arrow.FixedWidthTypes.Boolean},
	}
}

func eventStructFields() []arrow.Field {
	return []arrow.Field{
		{Name: "type", Type: arrow.BinaryTypes.String},
		{Name: "data", Type: arrow.BinaryTypes.Binary, Nullable: true},
	}
}

func moduleStructFields() []arrow.Field {
	return []arrow.Field{
		{Name: "id", Type: arrow.BinaryTypes.String},
		{Name: "code", Type: arrow.BinaryTypes.Binary, Nullable: true},
	}
}

// ResultSchema returns the Arrow schema of a committed block output. The
// execution mode is carried in the schema metadata under MetaMode.
//
// Fields:
//   - index: uint32 - Transaction index in the block
//   - status: string - keep, discard or retry
//   - failure: string (nullable) - Reason for a kept failure or discard
//   - writes: list<struct> - Materialized writes sorted by key
//   - module_writes: list<struct> - Published modules
//   - events: list<struct> - Emitted events
func ResultSchema(mode string) *arrow.Schema {
	var md *arrow.Metadata
	if mode != "" {
		m := arrow.NewMetadata([]string{MetaMode}, []string{mode})
		md = &m
	}
	return arrow.NewSchema(
		[]arrow.Field{
			{Name: "index", Type: arrow.PrimitiveTypes.Uint32},
			{Name: "status", Type: arrow.BinaryTypes.String},
			{Name: "failure", Type: arrow.BinaryTypes.String, Nullable: true},
			{Name: "writes", Type: arrow.ListOf(arrow.StructOf(writeStructFields()...))},
			{Name: "module_writes", Type: arrow.ListOf(arrow.StructOf(moduleStructFields()...))},
			{Name: "events", Type: arrow.ListOf(arrow.StructOf(eventStructFields()...))},
		},
		md,
	)
}
