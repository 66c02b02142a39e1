package bus

import "github.com/busline/msgbus/pkg/errors"

// Error codes for bus operations, one per error kind named in the design:
// ConfigurationError never reaches the pump, ParseError and HandlerError
// both escalate to fault handlers (the former immediately, the latter
// after MessageRetryCount attempts), PublishError surfaces synchronously
// to the publish caller, and TransientReceiveError is logged and retried
// by the pump itself.
const (
	CodeConfiguration    = "BUS_CONFIGURATION"
	CodeParse            = "BUS_PARSE"
	CodeHandler          = "BUS_HANDLER"
	CodePublish          = "BUS_PUBLISH"
	CodeTransientReceive = "BUS_TRANSIENT_RECEIVE"
	CodeUnknownTopic     = "BUS_UNKNOWN_TOPIC"
	CodeNoHandler        = "BUS_NO_HANDLER"
	CodeUnresolvableType = "BUS_UNRESOLVABLE_TYPE"
)

// ErrConfiguration wraps a bus/adapter construction failure.
func ErrConfiguration(message string, cause error) *errors.AppError {
	return errors.New(CodeConfiguration, message, cause)
}

// ErrParse wraps an envelope/payload parse failure.
func ErrParse(message string, cause error) *errors.AppError {
	return errors.New(CodeParse, message, cause)
}

// ErrHandler wraps a handler execution failure.
func ErrHandler(message string, cause error) *errors.AppError {
	return errors.New(CodeHandler, message, cause)
}

// ErrPublish wraps a topic/queue publish failure.
func ErrPublish(message string, cause error) *errors.AppError {
	return errors.New(CodePublish, message, cause)
}

// ErrTransientReceive wraps a transport error from QueueClient.Receive.
func ErrTransientReceive(message string, cause error) *errors.AppError {
	return errors.New(CodeTransientReceive, message, cause)
}

// ErrUnknownTopic is returned by TopicPublisher.Publish when no topic is
// cached or discoverable for the declared type.
func ErrUnknownTopic(topicName string) *errors.AppError {
	return errors.New(CodeUnknownTopic, "unknown topic: "+topicName, nil)
}

// ErrNoHandler is returned by Dispatcher.Dispatch when no handler is
// registered for the message's resolved type.
func ErrNoHandler(typeName string) *errors.AppError {
	return errors.New(CodeNoHandler, "no handler for "+typeName, nil)
}

// ErrUnresolvableType is set on TransportMessage.ParseError when the
// envelope's messageType attribute does not resolve against the
// TypeRegistry.
func ErrUnresolvableType(typeName string) *errors.AppError {
	return errors.New(CodeUnresolvableType, "unable to find message type "+typeName, nil)
}
