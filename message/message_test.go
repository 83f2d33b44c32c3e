package message

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeResultNil(t *testing.T) {
	env := ComposeResult(func(args ...any) (any, error) { return nil, nil })
	assert.False(t, env.HasResult)
	assert.False(t, env.Failed())

	data, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))
}

func TestComposeResultValue(t *testing.T) {
	env := ComposeResult(func(args ...any) (any, error) {
		return args[0].(int) + args[1].(int), nil
	}, 1, 2)
	require.True(t, env.HasResult)
	assert.Equal(t, 3, env.Result)

	data, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":3}`, string(data))
}

func TestComposeResultError(t *testing.T) {
	env := ComposeResult(func(args ...any) (any, error) {
		return nil, errors.New("boom")
	})
	assert.Equal(t, "boom", env.Exception)
	assert.EqualError(t, env.Err(), "boom")

	data, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"exception":"boom"}`, string(data))
}

func TestComposeResultPanic(t *testing.T) {
	env := ComposeResult(func(args ...any) (any, error) {
		panic("bad state")
	})
	assert.Equal(t, "bad state", env.Exception)
}

func TestComposeResultLazyArgs(t *testing.T) {
	called := false
	fn := func(args ...any) (any, error) {
		called = true
		return args[0], nil
	}

	env := ComposeResult(fn, LazyArg(func() any { return "lazy" }))
	assert.Equal(t, "lazy", env.Result)

	env = ComposeResult(fn, func() (any, error) { return 7, nil })
	assert.Equal(t, 7, env.Result)

	// a failing argument is reported like a failing call, and fn is not run
	called = false
	env = ComposeResult(fn, LazyArgError(func() (any, error) { return nil, errors.New("arg failed") }))
	assert.Equal(t, "arg failed", env.Exception)
	assert.False(t, called)

	env = ComposeResult(fn, func() any { panic("arg panic") })
	assert.Equal(t, "arg panic", env.Exception)
	assert.False(t, called)
}

func TestEnvelopeUnmarshal(t *testing.T) {
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"result":"RUNNING"}`), &env))
	assert.True(t, env.HasResult)
	assert.Equal(t, "RUNNING", env.Result)

	require.NoError(t, json.Unmarshal([]byte(`{"exception":"x"}`), &env))
	assert.True(t, env.Failed())
	assert.False(t, env.HasResult)

	require.NoError(t, json.Unmarshal([]byte(`{}`), &env))
	assert.False(t, env.HasResult)
	assert.False(t, env.Failed())
}
