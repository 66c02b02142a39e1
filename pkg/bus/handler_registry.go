package bus

// HandlerRegistry maps a message type name to the set of handler
// constructors and fault-handler constructors registered for it.
// Populated at bus construction and immutable thereafter — every pump and
// dispatcher sharing the registry reads it without locking.
type HandlerRegistry struct {
	handlers      map[string][]func() Handler
	faultHandlers map[string][]func() FaultHandler
	types         *TypeRegistry
}

// NewHandlerRegistry returns an empty, mutable builder. Call Build once
// registration is complete to obtain the immutable HandlerFactory; the
// TypeRegistry passed in here is populated in place as types register.
func NewHandlerRegistry(types *TypeRegistry) *HandlerRegistry {
	return &HandlerRegistry{
		handlers:      make(map[string][]func() Handler),
		faultHandlers: make(map[string][]func() FaultHandler),
		types:         types,
	}
}

// RegisterHandler registers a normal handler constructor for sample's
// type, registering that type with the TypeRegistry in the process.
func (r *HandlerRegistry) RegisterHandler(sample any, ctor func() Handler) {
	name := r.types.NameOf(sample)
	r.types.Register(sample)
	r.handlers[name] = append(r.handlers[name], ctor)
}

// RegisterFaultHandler registers a fault handler constructor for sample's
// type (or for the raw transport message, if sample is a *TransportMessage
// marker).
func (r *HandlerRegistry) RegisterFaultHandler(sample any, ctor func() FaultHandler) {
	if _, ok := sample.(*TransportMessage); ok {
		r.RegisterTransportFaultHandler(ctor)
		return
	}
	name := r.types.NameOf(sample)
	r.types.Register(sample)
	r.faultHandlers[name] = append(r.faultHandlers[name], ctor)
}

// RegisterTransportFaultHandler registers a fault handler invoked for every
// faulted message (a parse failure or exhausted retries), receiving the raw
// *TransportMessage instead of a decoded payload.
func (r *HandlerRegistry) RegisterTransportFaultHandler(ctor func() FaultHandler) {
	r.faultHandlers[transportFaultKey] = append(r.faultHandlers[transportFaultKey], ctor)
}

// transportFaultKey is the synthetic key under which transport-level
// fault handlers are stored, distinct from any real
// fully-qualified type name.
const transportFaultKey = "__transport__"

// HasHandlers reports whether at least one normal handler is registered
// for typeName.
func (r *HandlerRegistry) HasHandlers(typeName string) bool {
	return len(r.handlers[typeName]) > 0
}

// Build freezes the registry into a HandlerFactory. Call once, before the
// bus starts receiving.
func (r *HandlerRegistry) Build() *HandlerFactory {
	factory := NewHandlerFactory()
	for name, ctors := range r.handlers {
		factory.constructors[name] = append([]func() Handler{}, ctors...)
	}
	for name, ctors := range r.faultHandlers {
		factory.faultConstructors[name] = append([]func() FaultHandler{}, ctors...)
	}
	return factory
}
