// Package loader populates a registry.Context from a manifest before the
// first message is dispatched: payload types first, then every service with
// its property/operation mapping and transformer bindings.
package loader

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"vab-bridge/codec"
	"vab-bridge/logging"
	"vab-bridge/registry"
	"vab-bridge/service"
)

var (
	ErrUnknownFactory = errors.New("loader: unknown factory")
	ErrUnknownCodec   = errors.New("loader: unknown codec")
)

// TypeEntry declares a payload type tag and the codec that reads and writes it.
type TypeEntry struct {
	Tag   string `yaml:"tag"`
	Codec string `yaml:"codec"` // string, bytes or json
}

// ServiceEntry declares one service.
type ServiceEntry struct {
	service.Record `yaml:",inline"`

	Factory string            `yaml:"factory"`
	Inputs  []string          `yaml:"inputs"` // type tags the service consumes
	Params  map[string]string `yaml:"params"`
}

// Manifest is the complete list of what a bridge serves.
type Manifest struct {
	Types    []TypeEntry    `yaml:"types"`
	Services []ServiceEntry `yaml:"services"`
}

// Bindings maps input type tags to transformers.
type Bindings map[string]registry.Transformer

// Factory builds a service from its manifest entry.
type Factory func(entry ServiceEntry) (service.Service, Bindings, error)

var codecs = map[string]func() codec.Serializer{
	"string": func() codec.Serializer { return &codec.StringSerializer{} },
	"bytes":  func() codec.Serializer { return &codec.BytesSerializer{} },
	"json":   func() codec.Serializer { return codec.JSON[map[string]any]() },
}

// Loader resolves factory names to factories.
type Loader struct {
	factories map[string]Factory
	logger    *zap.Logger
}

// New creates a loader with the built-in factories registered.
func New(logger *zap.Logger) *Loader {
	l := &Loader{factories: make(map[string]Factory), logger: logging.OrNop(logger)}
	for name, f := range builtins {
		l.factories[name] = f
	}
	return l
}

// Register adds or replaces a factory.
func (l *Loader) Register(name string, f Factory) {
	l.factories[name] = f
}

// Factories lists the registered factory names.
func (l *Loader) Factories() []string {
	names := make([]string, 0, len(l.factories))
	for n := range l.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ReadManifest reads a manifest from a YAML file.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

// Load registers everything m declares in ctx. Loading stops at the first
// error; ctx may then be partially populated and should be discarded.
func (l *Loader) Load(ctx *registry.Context, m *Manifest) error {
	for _, t := range m.Types {
		newCodec, ok := codecs[t.Codec]
		if !ok {
			return fmt.Errorf("type %s: %w: %q", t.Tag, ErrUnknownCodec, t.Codec)
		}
		if err := ctx.RegisterType(t.Tag, newCodec()); err != nil {
			return fmt.Errorf("type %s: %w", t.Tag, err)
		}
	}

	for _, entry := range m.Services {
		if err := l.loadService(ctx, entry); err != nil {
			return fmt.Errorf("service %s: %w", entry.ID, err)
		}
	}

	props, ops := ctx.Operations.Names()
	l.logger.Info("manifest loaded",
		zap.Int("types", len(m.Types)),
		zap.Int("services", len(m.Services)),
		zap.Strings("properties", props),
		zap.Strings("operations", ops),
	)
	return nil
}

func (l *Loader) loadService(ctx *registry.Context, entry ServiceEntry) error {
	factory, ok := l.factories[entry.Factory]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFactory, entry.Factory)
	}
	svc, bindings, err := factory(entry)
	if err != nil {
		return err
	}
	if err := ctx.RegisterService(svc); err != nil {
		return err
	}
	if err := registry.MapService(ctx.Operations, svc); err != nil {
		return err
	}

	for tag, t := range bindings {
		if _, err := ctx.Serializer(tag); err != nil {
			return fmt.Errorf("input %s: %w", tag, err)
		}
		if t.IsAsync() {
			err = ctx.BindAsync(svc.ID(), tag, t.Async)
		} else {
			err = ctx.BindSync(svc.ID(), tag, t.Sync)
		}
		if err != nil {
			return err
		}
	}

	l.logger.Info("service loaded",
		zap.String("id", svc.ID()),
		zap.String("name", svc.Name()),
		zap.Stringer("version", svc.Version()),
		zap.String("factory", entry.Factory),
		zap.Int("bindings", len(bindings)),
	)
	return nil
}
