package bus

import (
	"encoding/json"
	"strconv"
)

// MessageParser decodes the raw envelope read off a queue into a
// TransportMessage, resolving the carried type name against a TypeRegistry
// and the carried body against a Codec.
type MessageParser struct {
	codec    Codec
	registry *TypeRegistry
}

// NewMessageParser builds a parser from the given codec and type registry.
func NewMessageParser(codec Codec, registry *TypeRegistry) *MessageParser {
	return &MessageParser{codec: codec, registry: registry}
}

// Parse runs the six-step decode algorithm: it never returns an error
// itself — any failure is recorded on the returned TransportMessage's
// ParsingSucceeded/ParseError fields so the pump can still acknowledge or
// dead-letter the message by its ReceiptHandle.
func (p *MessageParser) Parse(receiptHandle string, rawBody string, receiveAttributes map[string]string) *TransportMessage {
	msg := &TransportMessage{
		ReceiptHandle: receiptHandle,
		RetryCount:    approximateReceiveCount(receiveAttributes),
	}

	var envelope Envelope
	if err := json.Unmarshal([]byte(rawBody), &envelope); err != nil {
		msg.ParsingSucceeded = false
		msg.ParseError = ErrParse("failed to decode envelope", err)
		return msg
	}

	typeAttr, ok := envelope.MessageAttributes[AttrMessageType]
	if !ok {
		msg.ParsingSucceeded = false
		msg.ParseError = ErrParse("envelope missing messageType attribute", nil)
		return msg
	}
	msg.MessageTypeName = typeAttr.Value
	msg.Body = envelope.Message

	resolvedType, found := p.registry.Resolve(msg.MessageTypeName)
	if !found {
		msg.ParsingSucceeded = false
		msg.ParseError = ErrUnresolvableType(msg.MessageTypeName)
		return msg
	}

	decoded, err := p.codec.Deserialize(msg.Body, resolvedType)
	if err != nil {
		msg.ParsingSucceeded = false
		msg.ParseError = ErrParse("failed to decode payload for "+msg.MessageTypeName, err)
		return msg
	}

	msg.MessageType = resolvedType
	msg.Message = decoded
	msg.ParsingSucceeded = true
	return msg
}

// approximateReceiveCount reads the provider's ApproximateReceiveCount
// receive attribute, defaulting to 1 when absent or unparsable.
func approximateReceiveCount(receiveAttributes map[string]string) int {
	raw, ok := receiveAttributes[AttrApproximateReceiveCount]
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 1
	}
	return n
}
