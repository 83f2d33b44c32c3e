package codec

import (
	"encoding/base64"
	"reflect"
)

// BytesSerializer carries opaque bytes as standard base64 text. The console
// transport uses it for the raw server channel.
type BytesSerializer struct{}

func (c *BytesSerializer) ReadFrom(text string) (any, error) {
	return base64.StdEncoding.DecodeString(text)
}

func (c *BytesSerializer) WriteTo(v any) (string, error) {
	b, ok := v.([]byte)
	if !ok {
		return "", typeError(c.Type(), v)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func (c *BytesSerializer) Type() reflect.Type {
	return typeOf[[]byte]()
}

// StringSerializer passes text through unchanged.
type StringSerializer struct{}

func (c *StringSerializer) ReadFrom(text string) (any, error) {
	return text, nil
}

func (c *StringSerializer) WriteTo(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", typeError(c.Type(), v)
	}
	return s, nil
}

func (c *StringSerializer) Type() reflect.Type {
	return typeOf[string]()
}
