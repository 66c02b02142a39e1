package bus

import (
	"encoding/json"
	"reflect"

	"github.com/busline/msgbus/pkg/errors"
)

// Codec serializes and deserializes payloads to/from the string form
// carried in the wire envelope's Message field. Implementations must be
// symmetric: Deserialize(Serialize(v), typeof(v)) must reproduce v.
//
// Out of core scope per the bus's design: the core only depends on this
// interface, never on a concrete serializer, so callers can plug in
// whatever wire format their producers and consumers agree on.
type Codec interface {
	Serialize(v any) (string, error)
	Deserialize(s string, target reflect.Type) (any, error)
}

// JSONCodec is the default Codec, backed by encoding/json. It is the one
// part of the bus's domain stack that deliberately stays on the standard
// library: Codec is an explicitly caller-swappable boundary (see
// SPEC_FULL.md §4.1), and plain JSON is exactly what the teacher's own
// Message.Payload/Event.Payload fields assume at the equivalent boundary.
type JSONCodec struct{}

// NewJSONCodec returns the default JSON codec.
func NewJSONCodec() *JSONCodec { return &JSONCodec{} }

func (JSONCodec) Serialize(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", errors.Internal("failed to serialize payload", err)
	}
	return string(b), nil
}

func (JSONCodec) Deserialize(s string, target reflect.Type) (any, error) {
	ptr := reflect.New(target)
	if err := json.Unmarshal([]byte(s), ptr.Interface()); err != nil {
		return nil, errors.Internal("failed to deserialize payload", err)
	}
	return ptr.Elem().Interface(), nil
}
