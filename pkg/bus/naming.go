package bus

import (
	"reflect"
	"strings"
)

// topicName derives the wire topic/type identifier for t: its fully
// qualified name (package path + type name) with '/' and '.' collapsed to
// '_', since provider topic/queue names forbid those characters. Shared
// verbatim by TopicPublisher.registerTypes, TopicPublisher.Publish, and
// QueueClient.Subscribe so a producer and consumer built from the same Go
// type always agree on the same topic name.
func topicName(t reflect.Type) string {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	qualified := t.PkgPath() + "." + t.Name()
	replacer := strings.NewReplacer("/", "_", ".", "_")
	return replacer.Replace(qualified)
}

// fullyQualifiedTypeName is the human-readable identifier carried on the
// wire in the envelope's messageType attribute: package path + type name,
// unreplaced. TypeRegistry keys are exactly these strings.
func fullyQualifiedTypeName(t reflect.Type) string {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.PkgPath() + "." + t.Name()
}

// FullyQualifiedTypeNameFor returns the wire messageType identifier for
// sample's concrete type, for adapters building their own envelopes
// outside the TransactionalBus.
func FullyQualifiedTypeNameFor(sample any) string {
	return fullyQualifiedTypeName(reflect.TypeOf(sample))
}
