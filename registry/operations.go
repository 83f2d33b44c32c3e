package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Path prefixes of the two namespaces served over VAB.
const (
	PropertyPrefix  = "status/"
	OperationPrefix = "operations/service/"

	invokeSuffix = "/invoke"
)

type (
	// Getter reads a property value.
	Getter func() (any, error)
	// Setter writes a property value.
	Setter func(value any) error
	// Operation is called with the decoded JSON argument array.
	Operation func(args []any) (any, error)
)

type property struct {
	get Getter
	set Setter
}

// Operations resolves VAB paths to property accessors and operations.
// Definitions normally happen once before serving; lookups are safe from
// many connections at once.
type Operations struct {
	mu         sync.RWMutex
	properties map[string]property
	operations map[string]Operation
}

// NewOperations creates an empty registry.
func NewOperations() *Operations {
	return &Operations{
		properties: make(map[string]property),
		operations: make(map[string]Operation),
	}
}

// DefineProperty registers a property under its bare name. Either accessor may
// be nil for read-only or write-only properties.
func (o *Operations) DefineProperty(name string, get Getter, set Setter) error {
	if name == "" {
		return fmt.Errorf("%w: empty property name", ErrInvalidName)
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.properties[name]; exists {
		return fmt.Errorf("%w: property %s", ErrDuplicate, name)
	}
	o.properties[name] = property{get: get, set: set}
	return nil
}

// DefineOperation registers an operation under its bare name.
func (o *Operations) DefineOperation(name string, op Operation) error {
	if name == "" || op == nil {
		return fmt.Errorf("%w: operation %q", ErrInvalidName, name)
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.operations[name]; exists {
		return fmt.Errorf("%w: operation %s", ErrDuplicate, name)
	}
	o.operations[name] = op
	return nil
}

// Getter returns the getter bound to path, or nil.
func (o *Operations) Getter(path string) Getter {
	name, ok := propertyName(path)
	if !ok {
		return nil
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.properties[name].get
}

// Setter returns the setter bound to path, or nil.
func (o *Operations) Setter(path string) Setter {
	name, ok := propertyName(path)
	if !ok {
		return nil
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.properties[name].set
}

// Operation returns the operation bound to path, or nil.
func (o *Operations) Operation(path string) Operation {
	name, ok := operationName(path)
	if !ok {
		return nil
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.operations[name]
}

// Names lists the defined property and operation names in order.
func (o *Operations) Names() (properties, operations []string) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for n := range o.properties {
		properties = append(properties, n)
	}
	for n := range o.operations {
		operations = append(operations, n)
	}
	sort.Strings(properties)
	sort.Strings(operations)
	return properties, operations
}

func propertyName(path string) (string, bool) {
	return strings.CutPrefix(strings.TrimPrefix(path, "/"), PropertyPrefix)
}

func operationName(path string) (string, bool) {
	name, ok := strings.CutPrefix(strings.TrimPrefix(path, "/"), OperationPrefix)
	return strings.TrimSuffix(name, invokeSuffix), ok
}

// PropertyPath returns the full path of a property.
func PropertyPath(name string) string {
	return PropertyPrefix + name
}

// OperationPath returns the full path of an operation.
func OperationPath(name string) string {
	return OperationPrefix + name
}

// QualifiedName builds the element name of a service property or operation,
// e.g. service_1234_state.
func QualifiedName(serviceID, element string) string {
	return "service_" + serviceID + "_" + element
}

// Unqualify returns the element part of a qualified name.
func Unqualify(name string) string {
	if pos := strings.LastIndex(name, "_"); pos > 0 {
		return name[pos+1:]
	}
	return name
}
