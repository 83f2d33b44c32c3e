package message

import (
	"fmt"
)

// Func is the shape of a call wrapped by ComposeResult.
type Func func(args ...any) (any, error)

// Lazy arguments are evaluated inside ComposeResult, so a failing argument is
// reported the same way as a failing call.
type (
	LazyArg      func() any
	LazyArgError func() (any, error)
)

// ComposeResult runs fn and wraps the outcome into an Envelope. Arguments of
// type LazyArg, LazyArgError, func() any or func() (any, error) are evaluated
// first. Panics in arguments or in fn become exceptions.
func ComposeResult(fn Func, args ...any) (env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			env = Envelope{Exception: fmt.Sprint(r)}
		}
	}()

	resolved := make([]any, len(args))
	for i, a := range args {
		v, err := resolve(a)
		if err != nil {
			return Envelope{Exception: err.Error()}
		}
		resolved[i] = v
	}

	result, err := fn(resolved...)
	if err != nil {
		return Envelope{Exception: err.Error()}
	}
	if result == nil {
		return Envelope{}
	}
	return Envelope{Result: result, HasResult: true}
}

func resolve(arg any) (any, error) {
	switch f := arg.(type) {
	case LazyArg:
		return f(), nil
	case func() any:
		return f(), nil
	case LazyArgError:
		return f()
	case func() (any, error):
		return f()
	}
	return arg, nil
}
