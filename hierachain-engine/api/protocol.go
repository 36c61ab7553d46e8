// Package api serves block execution over a length-prefixed TCP protocol
// carrying Arrow IPC streams.
//
// A request frame holds one block of transactions in the transaction
// schema. The response frame holds the committed results in the result
// schema, or an error frame starting with ErrorPrefix.
package api

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// MaxMessageSize is the maximum allowed message size (50MB).
// Larger frames are rejected before the body is read.
const MaxMessageSize = 50 * 1024 * 1024 // 50MB

// ErrorPrefix starts every error frame.
const ErrorPrefix = "ERR "

// ErrMessageTooLarge is returned when a message exceeds MaxMessageSize.
var ErrMessageTooLarge = errors.New("message size exceeds maximum allowed size")

// ReadMessage reads a length-prefixed message from the reader.
// Format: [4 bytes length (BigEndian)] [N bytes payload]
func ReadMessage(r io.Reader) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}

	if length > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes (max: %d)", ErrMessageTooLarge, length, MaxMessageSize)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("failed to read message body: %w", err)
	}

	return buf, nil
}

// WriteMessage writes a length-prefixed message to the writer.
// Format: [4 bytes length (BigEndian)] [N bytes payload]
func WriteMessage(w io.Writer, data []byte) error {
	if len(data) > math.MaxUint32 {
		return fmt.Errorf("%w: data length %d exceeds uint32 max", ErrMessageTooLarge, len(data))
	}
	if len(data) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes (max: %d)", ErrMessageTooLarge, len(data), MaxMessageSize)
	}

	// Header and body go out in one write.
	frame := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data))) // #nosec G115 - bounds checked above
	copy(frame[4:], data)

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// WriteError writes an error frame.
func WriteError(w io.Writer, err error) error {
	return WriteMessage(w, []byte(ErrorPrefix+err.Error()))
}

// ParseError returns the message of an error frame and whether data is one.
// Arrow IPC streams never start with ErrorPrefix.
func ParseError(data []byte) (string, bool) {
	if !bytes.HasPrefix(data, []byte(ErrorPrefix)) {
		return "", false
	}
	return string(data[len(ErrorPrefix):]), true
}
