// Package codec provides the serializers that turn the text carried by the
// console and WebSocket transports into typed payloads and back.
//
// A serializer is registered under a type tag; the tag selects both the
// serializer and the transformer that receives the decoded value.
package codec

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrType is returned by WriteTo when the value has the wrong Go type.
var ErrType = errors.New("codec: unexpected value type")

// Serializer converts between wire text and a Go value of one type.
type Serializer interface {
	ReadFrom(text string) (any, error)
	WriteTo(v any) (string, error)
	Type() reflect.Type // Go type produced by ReadFrom and accepted by WriteTo
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func typeError(want reflect.Type, v any) error {
	return fmt.Errorf("%w: want %s, got %T", ErrType, want, v)
}
