package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestEncodeFrameExactBytes(t *testing.T) {
	got := EncodeFrame(nil, []byte("hello"))
	want := []byte{
		0x09, 0x00, 0x00, 0x00, // totalLength = 9
		0xFF, 0xFF, 0xFF, 0xFF, // infoLength = -1
		0x68, 0x65, 0x6C, 0x6C, 0x6F, // "hello"
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("EncodeFrame(nil, hello) = % X, want % X", got, want)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		info    *string
		payload []byte
	}{
		{"no info", nil, []byte("payload")},
		{"empty info", strPtr(""), []byte("payload")},
		{"info and payload", strPtr("image/jpeg"), []byte{0x00, 0x01, 0xFF}},
		{"utf8 info", strPtr("größe"), []byte("x")},
		{"empty payload", strPtr("meta"), []byte{}},
		{"nothing", nil, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data := EncodeFrame(tc.info, tc.payload)

			// totalLength always equals the number of bytes after it
			total := int32(binary.LittleEndian.Uint32(data[0:4]))
			if int(total) != len(data)-4 {
				t.Fatalf("totalLength = %d, want %d", total, len(data)-4)
			}

			info, payload, err := DecodeFrame(data)
			if err != nil {
				t.Fatalf("DecodeFrame failed: %v", err)
			}
			if (info == nil) != (tc.info == nil) {
				t.Fatalf("info nil mismatch: got %v, want %v", info, tc.info)
			}
			if info != nil && *info != *tc.info {
				t.Errorf("info mismatch: got %q, want %q", *info, *tc.info)
			}
			if !bytes.Equal(payload, tc.payload) {
				t.Errorf("payload mismatch: got % X, want % X", payload, tc.payload)
			}
		})
	}
}

func TestParseFromStream(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, strPtr("first"), []byte("one")); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if err := WriteFrame(&buf, nil, []byte("two")); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	info, payload, err := ParseFrom(&buf)
	if err != nil {
		t.Fatalf("ParseFrom failed: %v", err)
	}
	if info == nil || *info != "first" || string(payload) != "one" {
		t.Fatalf("first frame mismatch: %v %q", info, payload)
	}

	info, payload, err = ParseFrom(&buf)
	if err != nil {
		t.Fatalf("ParseFrom failed: %v", err)
	}
	if info != nil || string(payload) != "two" {
		t.Fatalf("second frame mismatch: %v %q", info, payload)
	}
}

func TestParseFromTruncated(t *testing.T) {
	data := EncodeFrame(strPtr("info"), []byte("payload"))

	for _, cut := range []int{0, 2, 4, 7, len(data) - 1} {
		_, _, err := ParseFrom(bytes.NewReader(data[:cut]))
		if !errors.Is(err, ErrFraming) {
			t.Errorf("cut at %d: expected ErrFraming, got %v", cut, err)
		}
	}
}

func TestDecodeFrameBadInfoLength(t *testing.T) {
	body := make([]byte, 8)
	binary.LittleEndian.PutUint32(body[0:4], 100) // info longer than the frame
	_, _, err := DecodeFrameBody(body)
	if !errors.Is(err, ErrFraming) {
		t.Fatalf("expected ErrFraming, got %v", err)
	}

	binary.LittleEndian.PutUint32(body[0:4], uint32(0xFFFFFFFE)) // -2
	_, _, err = DecodeFrameBody(body)
	if !errors.Is(err, ErrFraming) {
		t.Fatalf("expected ErrFraming for -2, got %v", err)
	}
}

func TestReadMessageRejectsOversize(t *testing.T) {
	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], 1024)
	_, err := ReadMessage(bytes.NewReader(prefix[:]), 16)
	if !errors.Is(err, ErrFraming) {
		t.Fatalf("expected ErrFraming, got %v", err)
	}
}

func TestDecodeLargePayload(t *testing.T) {
	large := make([]byte, 1024*1024)
	for i := range large {
		large[i] = byte(i % 256)
	}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, nil, large); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	_, payload, err := ParseFrom(&buf)
	if err != nil {
		t.Fatalf("ParseFrom failed: %v", err)
	}
	if !bytes.Equal(payload, large) {
		t.Errorf("large payload mismatch")
	}
}
