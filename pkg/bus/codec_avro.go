package bus

import (
	"reflect"
	"sync"

	"github.com/busline/msgbus/pkg/errors"
	"github.com/hamba/avro/v2"
)

// AvroCodec is an optional Codec backed by hamba/avro/v2, for deployments
// that want compact binary payloads with schema evolution instead of
// JSON. Schemas are registered per concrete Go type up front; Serialize
// and Deserialize look the schema up by the value's reflect.Type.
type AvroCodec struct {
	mu      sync.RWMutex
	schemas map[reflect.Type]avro.Schema
}

// NewAvroCodec creates an empty AvroCodec; call RegisterSchema for every
// publishable/consumable type before use.
func NewAvroCodec() *AvroCodec {
	return &AvroCodec{schemas: make(map[reflect.Type]avro.Schema)}
}

// RegisterSchema associates an Avro schema (in its JSON textual form) with
// the Go type of sample. Must be called once per type before Serialize or
// Deserialize is used for it.
func (c *AvroCodec) RegisterSchema(sample any, schemaJSON string) error {
	schema, err := avro.Parse(schemaJSON)
	if err != nil {
		return errors.Internal("failed to parse avro schema", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schemas[reflect.TypeOf(sample)] = schema
	return nil
}

func (c *AvroCodec) schemaFor(t reflect.Type) (avro.Schema, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	schema, ok := c.schemas[t]
	if !ok {
		return nil, errors.Internal("no avro schema registered for "+t.String(), nil)
	}
	return schema, nil
}

func (c *AvroCodec) Serialize(v any) (string, error) {
	schema, err := c.schemaFor(reflect.TypeOf(v))
	if err != nil {
		return "", err
	}
	b, err := avro.Marshal(schema, v)
	if err != nil {
		return "", errors.Internal("failed to serialize avro payload", err)
	}
	return string(b), nil
}

func (c *AvroCodec) Deserialize(s string, target reflect.Type) (any, error) {
	schema, err := c.schemaFor(target)
	if err != nil {
		return nil, err
	}
	ptr := reflect.New(target)
	if err := avro.Unmarshal(schema, []byte(s), ptr.Interface()); err != nil {
		return nil, errors.Internal("failed to deserialize avro payload", err)
	}
	return ptr.Elem().Interface(), nil
}
