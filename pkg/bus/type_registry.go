package bus

import (
	"reflect"
	"sync"
)

// TypeRegistry resolves the fully-qualified type names carried in wire
// envelopes back to a concrete reflect.Type, replacing the original
// design's cross-process reflective type lookup with an explicit,
// process-local registration step (see spec.md §9 Design Notes).
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// NewTypeRegistry returns an empty registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{types: make(map[string]reflect.Type)}
}

// Register associates sample's concrete type with its fully-qualified name.
// sample may be a pointer or a value; the registry always stores and
// resolves to the non-pointer element type.
func (r *TypeRegistry) Register(sample any) reflect.Type {
	t := reflect.TypeOf(sample)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	name := fullyQualifiedTypeName(t)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[name] = t
	return t
}

// Resolve looks up a previously registered type by its fully-qualified
// name. The second return value is false if no type was registered under
// that name.
func (r *TypeRegistry) Resolve(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// NameOf returns the fully-qualified name the registry would use for
// sample's type, regardless of whether it has been registered.
func (r *TypeRegistry) NameOf(sample any) string {
	t := reflect.TypeOf(sample)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return fullyQualifiedTypeName(t)
}
