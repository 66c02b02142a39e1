package bus

import "encoding/json"

// BuildEnvelope assembles the wire envelope (spec.md §6) every adapter in
// this repository sends and receives: an outer JSON document carrying the
// codec-serialized body as Message, plus extraAttributes merged with the
// core-added messageType and (for topic-originated publishes) fromSns.
// Kept here, instead of duplicated per adapter, so every transport agrees
// on exactly one wire shape and MessageParser never needs transport-
// specific decode logic.
func BuildEnvelope(body string, typeName string, fromTopic bool, extraAttributes map[string]string) (string, error) {
	attrs := make(map[string]EnvelopeAttributeValue, len(extraAttributes)+2)
	for k, v := range extraAttributes {
		attrs[k] = EnvelopeAttributeValue{Value: v, Type: "String"}
	}
	attrs[AttrMessageType] = EnvelopeAttributeValue{Value: typeName, Type: "String"}
	if fromTopic {
		attrs[AttrFromSNS] = EnvelopeAttributeValue{Value: "True", Type: "String"}
	}

	envelope := Envelope{Message: body, MessageAttributes: attrs}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return "", ErrPublish("failed to encode wire envelope", err)
	}
	return string(raw), nil
}
