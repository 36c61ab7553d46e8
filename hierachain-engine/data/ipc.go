package data

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ErrNoRecords is returned when an IPC stream carries no record batch.
var ErrNoRecords = errors.New("no records in IPC data")

// IPCCodec writes and reads Arrow IPC streams.
type IPCCodec struct {
	allocator memory.Allocator
}

// NewIPCCodec creates a new IPCCodec.
func NewIPCCodec() *IPCCodec {
	return &IPCCodec{allocator: memory.DefaultAllocator}
}

// Serialize encodes records sharing one schema as an IPC stream.
func (c *IPCCodec) Serialize(records ...arrow.Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}

	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(records[0].Schema()), ipc.WithAllocator(c.allocator))
	defer writer.Close()

	for i, record := range records {
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	return buf.Bytes(), nil
}

// Deserialize decodes the first record of an IPC stream. When schema is
// non-nil the stream must carry that schema. The caller releases the record.
func (c *IPCCodec) Deserialize(data []byte, schema *arrow.Schema) (rec arrow.Record, err error) {
	// Malformed flatbuffers can panic inside the reader.
	defer func() {
		if r := recover(); r != nil {
			rec, err = nil, fmt.Errorf("malformed IPC data: %v", r)
		}
	}()

	opts := []ipc.Option{ipc.WithAllocator(c.allocator)}
	if schema != nil {
		opts = append(opts, ipc.WithSchema(schema))
	}
	reader, err := ipc.NewReader(bytes.NewReader(data), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create reader: %w", err)
	}
	defer reader.Release()

	if !reader.Next() {
		if reader.Err() != nil {
			return nil, reader.Err()
		}
		return nil, ErrNoRecords
	}

	record := reader.Record()
	record.Retain()
	return record, nil
}
