package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vab-bridge/registry"
	"vab-bridge/service"
)

const testManifest = `
types:
  - tag: S
    codec: string
  - tag: J
    codec: json
services:
  - id: "1234"
    name: Upper
    version: "1.22.3"
    description: upper-cases text
    deployable: true
    kind: TRANSFORMATION
    factory: upper
    inputs: [S]
  - id: "5678"
    name: Echo
    version: "0.1"
    kind: SINK_SERVICE
    factory: async-echo
    inputs: [J]
    params:
      repeat: "2"
`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadAndLoad(t *testing.T) {
	m, err := ReadManifest(writeManifest(t, testManifest))
	require.NoError(t, err)
	require.Len(t, m.Services, 2)
	assert.Equal(t, "1.22.3", m.Services[0].Version.String())
	assert.Equal(t, service.TransformationService, m.Services[0].Kind)
	assert.True(t, m.Services[0].Deployable)

	ctx := registry.NewContext()
	require.NoError(t, New(zap.NewNop()).Load(ctx, m))

	svc, err := ctx.Service("1234")
	require.NoError(t, err)
	assert.Equal(t, "Upper", svc.Name())
	assert.Equal(t, service.Available, svc.State())

	get := ctx.Operations.Getter("status/service_1234_description")
	require.NotNil(t, get)
	v, err := get()
	require.NoError(t, err)
	assert.Equal(t, "upper-cases text", v)
	assert.NotNil(t, ctx.Operations.Operation("operations/service/service_5678_activate"))

	tr, err := ctx.Transformer("1234", "S")
	require.NoError(t, err)
	out, err := tr.Sync("abc")
	require.NoError(t, err)
	assert.Equal(t, "ABC", out)

	tr, err = ctx.Transformer("5678", "J")
	require.NoError(t, err)
	assert.True(t, tr.IsAsync())
}

func TestAsyncEchoRepeats(t *testing.T) {
	ctx := registry.NewContext()
	m := &Manifest{
		Types: []TypeEntry{{Tag: "S", Codec: "string"}},
		Services: []ServiceEntry{{
			Record:  service.Record{ID: "1", Name: "Echo"},
			Factory: "async-echo",
			Inputs:  []string{"S"},
			Params:  map[string]string{"repeat": "3"},
		}},
	}
	require.NoError(t, New(nil).Load(ctx, m))

	svc, err := ctx.Service("1")
	require.NoError(t, err)
	var got []any
	svc.(service.IngestorAware).AttachIngestor(func(data any) { got = append(got, data) })

	tr, err := ctx.Transformer("1", "S")
	require.NoError(t, err)
	require.NoError(t, tr.Async("x"))
	assert.Equal(t, []any{"x", "x", "x"}, got)
}

func TestTagsShareCodec(t *testing.T) {
	ctx := registry.NewContext()
	m := &Manifest{
		Types: []TypeEntry{{Tag: "S", Codec: "string"}, {Tag: "T", Codec: "string"}},
		Services: []ServiceEntry{{
			Record:  service.Record{ID: "1", Name: "Upper"},
			Factory: "upper",
			Inputs:  []string{"S", "T"},
		}},
	}
	require.NoError(t, New(nil).Load(ctx, m))

	for _, tag := range []string{"S", "T"} {
		_, err := ctx.Serializer(tag)
		require.NoError(t, err)
		tr, err := ctx.Transformer("1", tag)
		require.NoError(t, err)
		out, err := tr.Sync("abc")
		require.NoError(t, err)
		assert.Equal(t, "ABC", out)
	}

	tag, err := ctx.TagOf("abc")
	require.NoError(t, err)
	assert.Equal(t, "S", tag)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		m    Manifest
		want error
	}{
		{
			name: "unknown codec",
			m:    Manifest{Types: []TypeEntry{{Tag: "X", Codec: "xml"}}},
			want: ErrUnknownCodec,
		},
		{
			name: "unknown factory",
			m:    Manifest{Services: []ServiceEntry{{Record: service.Record{ID: "1"}, Factory: "nope"}}},
			want: ErrUnknownFactory,
		},
		{
			name: "input without type",
			m:    Manifest{Services: []ServiceEntry{{Record: service.Record{ID: "1"}, Factory: "echo", Inputs: []string{"S"}}}},
			want: registry.ErrUnknownType,
		},
		{
			name: "duplicate service",
			m: Manifest{Services: []ServiceEntry{
				{Record: service.Record{ID: "1"}, Factory: "echo"},
				{Record: service.Record{ID: "1"}, Factory: "echo"},
			}},
			want: registry.ErrDuplicate,
		},
		{
			name: "duplicate tag",
			m: Manifest{Types: []TypeEntry{
				{Tag: "A", Codec: "string"},
				{Tag: "A", Codec: "bytes"},
			}},
			want: registry.ErrDuplicate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(nil).Load(registry.NewContext(), &tt.m)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCustomFactory(t *testing.T) {
	l := New(nil)
	called := false
	l.Register("custom", func(entry ServiceEntry) (service.Service, Bindings, error) {
		called = true
		return service.NewBase(entry.Record), nil, nil
	})
	assert.Contains(t, l.Factories(), "custom")
	assert.Contains(t, l.Factories(), "upper")

	m := &Manifest{Services: []ServiceEntry{{Record: service.Record{ID: "9"}, Factory: "custom"}}}
	require.NoError(t, l.Load(registry.NewContext(), m))
	assert.True(t, called)
}
