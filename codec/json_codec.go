package codec

import (
	"encoding/json"
	"reflect"
)

// JSONSerializer reads and writes values of type T as JSON text.
type JSONSerializer[T any] struct{}

// JSON returns a serializer for T.
func JSON[T any]() *JSONSerializer[T] {
	return &JSONSerializer[T]{}
}

func (s *JSONSerializer[T]) ReadFrom(text string) (any, error) {
	var v T
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *JSONSerializer[T]) WriteTo(v any) (string, error) {
	t, ok := v.(T)
	if !ok {
		if p, isPtr := v.(*T); isPtr && p != nil {
			t = *p
		} else {
			return "", typeError(s.Type(), v)
		}
	}
	data, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *JSONSerializer[T]) Type() reflect.Type {
	return typeOf[T]()
}
