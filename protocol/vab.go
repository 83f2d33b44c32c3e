package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Opcode identifies a VAB request.
type Opcode byte

const (
	OpGet    Opcode = 0x01 // read a property
	OpSet    Opcode = 0x02 // write a property
	OpCreate Opcode = 0x03 // create an element, unsupported by the bridge
	OpDelete Opcode = 0x04 // delete an element, unsupported by the bridge
	OpInvoke Opcode = 0x05 // call an operation
)

// OpcodeNames maps opcodes to names for logging and metrics labels.
var OpcodeNames = map[Opcode]string{
	OpGet:    "GET",
	OpSet:    "SET",
	OpCreate: "CREATE",
	OpDelete: "DELETE",
	OpInvoke: "INVOKE",
}

func (o Opcode) String() string {
	if n, ok := OpcodeNames[o]; ok {
		return n
	}
	return fmt.Sprintf("OPCODE(%d)", byte(o))
}

// ResultCode is the first byte of every VAB response.
type ResultCode int8

const (
	ResultOK          ResultCode = 0
	ResultError       ResultCode = 1
	ResultNotFound    ResultCode = 2
	ResultBadRequest  ResultCode = 3
	ResultUnsupported ResultCode = 4
)

func (c ResultCode) String() string {
	switch c {
	case ResultOK:
		return "OK"
	case ResultError:
		return "ERROR"
	case ResultNotFound:
		return "NOT_FOUND"
	case ResultBadRequest:
		return "BAD_REQUEST"
	case ResultUnsupported:
		return "UNSUPPORTED"
	}
	return fmt.Sprintf("RESULT(%d)", int8(c))
}

// Request is a decoded VAB request. Which of Value and Args is set depends on Op:
//
//   - GET:           Path only
//   - SET / CREATE:  Path, Value
//   - DELETE:        Path, Value if the request carried one
//   - INVOKE:        Path, Args (JSON array)
type Request struct {
	Op    Opcode
	Path  string
	Value []byte
	Args  []byte
}

// Response is a VAB response: result code plus JSON text (possibly empty).
type Response struct {
	Code ResultCode
	JSON []byte
}

// OK builds a successful response.
func OK(body []byte) *Response {
	return &Response{Code: ResultOK, JSON: body}
}

// Failure builds a non-OK response carrying msg as a JSON string.
func Failure(code ResultCode, msg string) *Response {
	body, _ := json.Marshal(msg)
	return &Response{Code: code, JSON: body}
}

type requestDecoder func(rest []byte, req *Request) error

var requestDecoders = map[Opcode]requestDecoder{
	OpGet:    decodeGet,
	OpSet:    decodeValue,
	OpCreate: decodeValue,
	OpDelete: decodeOptionalValue,
	OpInvoke: decodeInvoke,
}

// DecodeRequest parses a VAB request body (without the length prefix).
func DecodeRequest(data []byte) (*Request, error) {
	if len(data) < 1 {
		return nil, &DecodeError{Field: "opcode", Want: 1, Err: ErrFraming}
	}
	op := Opcode(data[0])
	decode, ok := requestDecoders[op]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownOpcode, data[0])
	}

	pathLen, err := readInt32(data, 1, "pathLength")
	if err != nil {
		return nil, err
	}
	path, err := readBytes(data, 5, pathLen, "path")
	if err != nil {
		return nil, err
	}

	req := &Request{Op: op, Path: string(path)}
	if err := decode(data[5+len(path):], req); err != nil {
		return nil, err
	}
	return req, nil
}

func decodeGet(rest []byte, req *Request) error {
	return nil
}

// decodeValue takes everything after the path as the JSON value.
// Some clients put an int32 length in front of the value; it is dropped when it
// matches the remaining byte count exactly and is never used for slicing.
func decodeValue(rest []byte, req *Request) error {
	req.Value = valueBody(rest)
	return nil
}

func decodeOptionalValue(rest []byte, req *Request) error {
	if len(rest) > 0 {
		req.Value = valueBody(rest)
	}
	return nil
}

func decodeInvoke(rest []byte, req *Request) error {
	argsLen, err := readInt32(rest, 0, "argsLength")
	if err != nil {
		return err
	}
	args, err := readBytes(rest, 4, argsLen, "args")
	if err != nil {
		return err
	}
	req.Args = args
	return nil
}

func valueBody(rest []byte) []byte {
	if len(rest) >= 4 && int(int32(binary.LittleEndian.Uint32(rest[0:4]))) == len(rest)-4 {
		return rest[4:]
	}
	return rest
}

// EncodeRequest builds a request body. Values are written as the bare
// remaining bytes, invocation arguments with their int32 length.
func EncodeRequest(req *Request) []byte {
	size := 1 + 4 + len(req.Path)
	switch req.Op {
	case OpInvoke:
		size += 4 + len(req.Args)
	default:
		size += len(req.Value)
	}

	buf := make([]byte, size)
	buf[0] = byte(req.Op)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(req.Path)))
	offset := 5
	copy(buf[offset:], req.Path)
	offset += len(req.Path)

	if req.Op == OpInvoke {
		binary.LittleEndian.PutUint32(buf[offset:offset+4], uint32(len(req.Args)))
		offset += 4
		copy(buf[offset:], req.Args)
	} else {
		copy(buf[offset:], req.Value)
	}
	return buf
}

// EncodeResponse builds a response body: resultCode, jsonLength, json.
func EncodeResponse(resp *Response) []byte {
	buf := make([]byte, 1+4+len(resp.JSON))
	buf[0] = byte(resp.Code)
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(resp.JSON)))
	copy(buf[5:], resp.JSON)
	return buf
}

// DecodeResponse parses a response body.
func DecodeResponse(data []byte) (*Response, error) {
	if len(data) < 1 {
		return nil, &DecodeError{Field: "resultCode", Want: 1, Err: ErrFraming}
	}
	jsonLen, err := readInt32(data, 1, "jsonLength")
	if err != nil {
		return nil, err
	}
	body, err := readBytes(data, 5, jsonLen, "json")
	if err != nil {
		return nil, err
	}
	return &Response{Code: ResultCode(int8(data[0])), JSON: body}, nil
}
