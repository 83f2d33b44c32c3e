// Package protocol implements the binary wire formats spoken by the bridge.
//
// Every message on a VAB TCP connection is length-prefixed. The receiver reads the
// 4-byte little-endian length first, then reads exactly that many bytes, so callers
// never observe a partial message.
//
// Message format:
//
//	0         4
//	┌─────────┬────────────────────┐
//	│ length  │      body ...      │
//	│ int32LE │   length bytes     │
//	└─────────┴────────────────────┘
//
// On a VAB connection the body is a request or response (see vab.go). The
// payload frame in frame.go uses the same prefix as its totalLength; it is a
// standalone codec for framed payloads and no VAB connection carries it.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// PrefixSize is the size of the length prefix in front of every message.
	PrefixSize = 4
	// DefaultMaxMessageSize bounds the allocation done for a single message.
	DefaultMaxMessageSize = 64 << 20
)

var (
	// ErrFraming reports malformed lengths or a stream ending inside a message.
	ErrFraming = errors.New("protocol: framing error")
	// ErrUnknownOpcode reports a VAB request with an opcode outside 1..5.
	ErrUnknownOpcode = errors.New("protocol: unknown opcode")
)

// DecodeError describes where a message could not be decoded.
type DecodeError struct {
	Field string // Field being read when decoding failed, e.g. "path" or "args"
	Want  int    // Bytes the field declared
	Have  int    // Bytes actually available
	Err   error  // Underlying cause, ErrFraming or an I/O error
}

func (e *DecodeError) Error() string {
	if e.Want > 0 || e.Have > 0 {
		return fmt.Sprintf("protocol: decode %s: need %d bytes, have %d: %v", e.Field, e.Want, e.Have, e.Err)
	}
	return fmt.Sprintf("protocol: decode %s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrFraming) match every decode failure, including
// those caused by a truncated stream.
func (e *DecodeError) Is(target error) bool {
	return target == ErrFraming
}

// WriteMessage writes body behind a little-endian length prefix.
func WriteMessage(w io.Writer, body []byte) error {
	buf := make([]byte, PrefixSize+len(body))
	binary.LittleEndian.PutUint32(buf[0:PrefixSize], uint32(len(body)))
	copy(buf[PrefixSize:], body)
	_, err := w.Write(buf)
	return err
}

// ReadMessage reads one length-prefixed message from r.
// Uses io.ReadFull so that a short read is reported instead of returned.
func ReadMessage(r io.Reader, maxSize int) ([]byte, error) {
	var prefix [PrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if err == io.EOF {
			// clean end of stream between messages
			return nil, err
		}
		return nil, &DecodeError{Field: "length", Want: PrefixSize, Err: err}
	}

	size := int32(binary.LittleEndian.Uint32(prefix[:]))
	if size < 0 {
		return nil, &DecodeError{Field: "length", Want: int(size), Err: ErrFraming}
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	if int(size) > maxSize {
		return nil, &DecodeError{Field: "length", Want: int(size), Have: maxSize, Err: ErrFraming}
	}

	body := make([]byte, size)
	if n, err := io.ReadFull(r, body); err != nil {
		return nil, &DecodeError{Field: "body", Want: int(size), Have: n, Err: err}
	}
	return body, nil
}

// readInt32 reads a little-endian int32 at offset, checking bounds.
func readInt32(data []byte, offset int, field string) (int32, error) {
	if offset+4 > len(data) {
		return 0, &DecodeError{Field: field, Want: 4, Have: len(data) - offset, Err: ErrFraming}
	}
	return int32(binary.LittleEndian.Uint32(data[offset : offset+4])), nil
}

// readBytes returns n bytes at offset, checking that the declared length fits.
func readBytes(data []byte, offset int, n int32, field string) ([]byte, error) {
	if n < 0 || offset+int(n) > len(data) {
		return nil, &DecodeError{Field: field, Want: int(n), Have: len(data) - offset, Err: ErrFraming}
	}
	return data[offset : offset+int(n)], nil
}
