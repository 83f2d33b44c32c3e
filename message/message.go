// Package message defines the result envelope returned by service operations.
//
// An Envelope has one of three shapes on the wire:
//
//   - {}                      the call returned nothing
//   - {"result": value}       the call succeeded
//   - {"exception": "text"}   the call (or one of its arguments) failed
package message

import (
	"encoding/json"
	"errors"
)

// Envelope is the uniform success/exception wrapper for operation results.
type Envelope struct {
	Result    any    // Value returned by the call, nil when HasResult is false
	HasResult bool   // Distinguishes {"result": null} from {}
	Exception string // Non-empty if the call failed
}

// Failed reports whether the envelope carries an exception.
func (e Envelope) Failed() bool {
	return e.Exception != ""
}

// Err returns the exception as an error, or nil.
func (e Envelope) Err() error {
	if e.Exception == "" {
		return nil
	}
	return errors.New(e.Exception)
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	switch {
	case e.Exception != "":
		return json.Marshal(map[string]string{"exception": e.Exception})
	case e.HasResult:
		return json.Marshal(map[string]any{"result": e.Result})
	}
	return []byte("{}"), nil
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Envelope{}
	if exc, ok := raw["exception"]; ok {
		return json.Unmarshal(exc, &e.Exception)
	}
	if res, ok := raw["result"]; ok {
		e.HasResult = true
		return json.Unmarshal(res, &e.Result)
	}
	return nil
}
