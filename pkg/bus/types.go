package bus

import "reflect"

// TransportMessage is the unit moved between the wire and the dispatcher.
// parsingSucceeded implies message, messageType and parseError are
// mutually consistent: a successful parse always carries a decoded
// message and its resolved type, and never a parse error.
type TransportMessage struct {
	// ReceiptHandle is the opaque server-side token used to delete or
	// extend visibility. Always set for messages returned from the queue.
	ReceiptHandle string

	// RetryCount is the provider-reported approximate delivery count.
	// Always >= 1 for a received message.
	RetryCount int

	// Body is the raw serialized payload string after the envelope has
	// been stripped.
	Body string

	// MessageTypeName is the fully-qualified logical type identifier as
	// carried in the envelope's messageType attribute.
	MessageTypeName string

	// MessageType is the resolved concrete type, nil if resolution failed.
	MessageType reflect.Type

	// Message is the decoded payload instance, nil if parsing failed.
	Message any

	// ParsingSucceeded reports whether Message/MessageType were resolved.
	ParsingSucceeded bool

	// ParseError is populated when ParsingSucceeded is false.
	ParseError error
}

// EnvelopeAttributeValue mirrors the provider's {Value, Type} attribute
// shape carried in the wire envelope's MessageAttributes map.
type EnvelopeAttributeValue struct {
	Value string `json:"Value"`
	Type  string `json:"Type"`
}

// Envelope is the wire representation read out of each queue message body:
// an outer JSON document containing the inner payload string and a map of
// attributes. The attribute named messageType carries the type identifier,
// sender carries the originating queue address, fromSns marks
// topic-originated messages.
type Envelope struct {
	Message           string                            `json:"Message"`
	MessageAttributes map[string]EnvelopeAttributeValue `json:"MessageAttributes"`
}

// Attribute name constants read from / written to the wire envelope.
const (
	AttrMessageType = "messageType"
	AttrSender      = "sender"
	AttrFromSNS     = "fromSns"

	// AttrApproximateReceiveCount is the provider receive-attribute name
	// consulted to populate TransportMessage.RetryCount.
	AttrApproximateReceiveCount = "ApproximateReceiveCount"
)

// MessageProcessingResult is the outcome of dispatching one TransportMessage
// through its handler set.
type MessageProcessingResult struct {
	Success bool
	Error   error
}

// PendingOutboundMode distinguishes a topic publish from a direct local
// enqueue deferred inside an ambient transaction.
type PendingOutboundMode int

const (
	PendingPublish PendingOutboundMode = iota
	PendingSendLocal
)

// PendingOutbound is one buffered outbound action enlisted on an ambient
// transaction: the builder closure is stored unevaluated and only invoked
// on commit, never on rollback.
type PendingOutbound struct {
	Mode         PendingOutboundMode
	DeclaredType reflect.Type
	Build        func() (any, error)
}
