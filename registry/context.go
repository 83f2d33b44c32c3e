package registry

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"vab-bridge/codec"
	"vab-bridge/service"
)

type (
	// SyncTransformer returns its result directly.
	SyncTransformer func(data any) (any, error)
	// AsyncTransformer returns nothing; results arrive later through the
	// service's ingestor.
	AsyncTransformer func(data any) error
)

// Transformer is a binding of one service to one input type. Exactly one of
// Sync and Async is set.
type Transformer struct {
	Sync  SyncTransformer
	Async AsyncTransformer
}

// IsAsync reports whether results are delivered through the ingestor.
func (t Transformer) IsAsync() bool {
	return t.Async != nil
}

// Context is built once at startup and passed to every transport. It replaces
// process-wide registries: one writer during loading, many readers after.
type Context struct {
	Operations *Operations

	mu           sync.RWMutex
	serializers  map[string]codec.Serializer
	tags         map[reflect.Type]string
	services     map[string]service.Service
	transformers map[string]Transformer
}

// NewContext creates an empty context.
func NewContext() *Context {
	return &Context{
		Operations:   NewOperations(),
		serializers:  make(map[string]codec.Serializer),
		tags:         make(map[reflect.Type]string),
		services:     make(map[string]service.Service),
		transformers: make(map[string]Transformer),
	}
}

// RegisterType binds a type tag to a serializer. Several tags may share a Go
// type; the first one registered is the tag TagOf reports for it.
func (c *Context) RegisterType(tag string, s codec.Serializer) error {
	if tag == "" || s == nil {
		return fmt.Errorf("%w: type tag %q", ErrInvalidName, tag)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.serializers[tag]; exists {
		return fmt.Errorf("%w: type %s", ErrDuplicate, tag)
	}
	c.serializers[tag] = s
	if _, exists := c.tags[s.Type()]; !exists {
		c.tags[s.Type()] = tag
	}
	return nil
}

// Serializer returns the serializer for tag.
func (c *Context) Serializer(tag string) (codec.Serializer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.serializers[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, tag)
	}
	return s, nil
}

// TagOf returns the tag registered for the Go type of v. Pointers resolve to
// the tag of their element type.
func (c *Context) TagOf(v any) (string, error) {
	typ := reflect.TypeOf(v)
	if typ == nil {
		return "", fmt.Errorf("%w: nil value", ErrUnknownType)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if tag, ok := c.tags[typ]; ok {
		return tag, nil
	}
	if typ.Kind() == reflect.Pointer {
		if tag, ok := c.tags[typ.Elem()]; ok {
			return tag, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownType, typ)
}

// RegisterService adds a service under its id.
func (c *Context) RegisterService(svc service.Service) error {
	id := svc.ID()
	if id == "" {
		return fmt.Errorf("%w: empty service id", ErrInvalidName)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.services[id]; exists {
		return fmt.Errorf("%w: service %s", ErrDuplicate, id)
	}
	c.services[id] = svc
	return nil
}

// Service returns the service registered under id.
func (c *Context) Service(id string) (service.Service, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	svc, ok := c.services[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, id)
	}
	return svc, nil
}

// Services returns all services ordered by id.
func (c *Context) Services() []service.Service {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]service.Service, 0, len(c.services))
	for _, s := range c.services {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// BindSync binds a synchronous transformer for (serviceID, tag).
func (c *Context) BindSync(serviceID, tag string, fn SyncTransformer) error {
	if fn == nil {
		return fmt.Errorf("%w: nil transformer for %s", ErrInvalidName, TransformerKey(serviceID, tag))
	}
	return c.bind(serviceID, tag, Transformer{Sync: fn})
}

// BindAsync binds an asynchronous transformer for (serviceID, tag).
func (c *Context) BindAsync(serviceID, tag string, fn AsyncTransformer) error {
	if fn == nil {
		return fmt.Errorf("%w: nil transformer for %s", ErrInvalidName, TransformerKey(serviceID, tag))
	}
	return c.bind(serviceID, tag, Transformer{Async: fn})
}

func (c *Context) bind(serviceID, tag string, t Transformer) error {
	key := TransformerKey(serviceID, tag)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.transformers[key]; exists {
		return fmt.Errorf("%w: transformer %s", ErrDuplicate, key)
	}
	c.transformers[key] = t
	return nil
}

// Transformer returns the binding for (serviceID, tag).
func (c *Context) Transformer(serviceID, tag string) (Transformer, error) {
	key := TransformerKey(serviceID, tag)
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.transformers[key]
	if !ok {
		return Transformer{}, fmt.Errorf("%w: transformer %s", ErrNotFound, key)
	}
	return t, nil
}

// TransformerKey is the directory key of a transformer binding.
func TransformerKey(serviceID, tag string) string {
	return serviceID + "_" + tag
}
