package protocol

import (
	"encoding/binary"
	"io"
)

// NoInfo is the info length written when a frame carries no info string.
const NoInfo int32 = -1

// Frame format (all integers little-endian):
//
//	0             4            8
//	┌─────────────┬────────────┬──────────────┬──────────────┐
//	│ totalLength │ infoLength │  info ...    │  payload ... │
//	│   int32     │ int32 / -1 │ infoLength B │              │
//	└─────────────┴────────────┴──────────────┴──────────────┘
//
// totalLength counts everything after itself: 4 + max(infoLength, 0) + len(payload).

// EncodeFrame builds a complete frame. A nil info is encoded as infoLength -1,
// which is distinct from an empty info string.
func EncodeFrame(info *string, payload []byte) []byte {
	infoLen := NoInfo
	var infoBytes []byte
	if info != nil {
		infoBytes = []byte(*info)
		infoLen = int32(len(infoBytes))
	}

	total := 4 + len(infoBytes) + len(payload)
	buf := make([]byte, PrefixSize+total)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(total))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(infoLen))
	offset := 8
	copy(buf[offset:], infoBytes)
	offset += len(infoBytes)
	copy(buf[offset:], payload)
	return buf
}

// DecodeFrame is the inverse of EncodeFrame. data must be a complete frame
// including its totalLength prefix.
func DecodeFrame(data []byte) (*string, []byte, error) {
	total, err := readInt32(data, 0, "totalLength")
	if err != nil {
		return nil, nil, err
	}
	if int(total) != len(data)-PrefixSize {
		return nil, nil, &DecodeError{Field: "totalLength", Want: int(total), Have: len(data) - PrefixSize, Err: ErrFraming}
	}
	return DecodeFrameBody(data[PrefixSize:])
}

// DecodeFrameBody decodes the part of a frame after totalLength, reading
// infoLength first. The returned payload aliases body.
func DecodeFrameBody(body []byte) (*string, []byte, error) {
	infoLen, err := readInt32(body, 0, "infoLength")
	if err != nil {
		return nil, nil, err
	}
	if infoLen == NoInfo {
		return nil, body[4:], nil
	}
	infoBytes, err := readBytes(body, 4, infoLen, "info")
	if err != nil {
		return nil, nil, err
	}
	info := string(infoBytes)
	return &info, body[4+len(infoBytes):], nil
}

// ParseFrom blocks until one complete frame has been read from r.
// EOF before the frame is complete is reported as ErrFraming.
func ParseFrom(r io.Reader) (*string, []byte, error) {
	body, err := ReadMessage(r, DefaultMaxMessageSize)
	if err == io.EOF {
		return nil, nil, &DecodeError{Field: "totalLength", Want: PrefixSize, Err: io.ErrUnexpectedEOF}
	}
	if err != nil {
		return nil, nil, err
	}
	return DecodeFrameBody(body)
}

// WriteFrame encodes and writes a frame to w.
func WriteFrame(w io.Writer, info *string, payload []byte) error {
	_, err := w.Write(EncodeFrame(info, payload))
	return err
}
