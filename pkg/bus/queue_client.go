package bus

import "context"

// QueueClient is the minimal durable, at-least-once queue abstraction a
// MessagePump polls: one input queue, subscribed to zero or more topics,
// delivering raw wire envelopes that MessageParser decodes.
type QueueClient interface {
	// Address returns the queue's provider-specific identifier (URL, ARN,
	// topic+partition, …), used as the sender attribute on messages
	// published locally to this queue and in log/trace attribution.
	Address() string

	// Subscribe binds this queue to receive fan-out from the topic
	// derived from sample's concrete type. Adapters for providers with no
	// separate topic/queue distinction (Kafka, memory) may treat this as
	// registering interest rather than a true subscription.
	Subscribe(ctx context.Context, sample any) error

	// Receive blocks, within the bounds of ctx, until at least one message
	// is available or the provider's long-poll window elapses, returning
	// fully parsed TransportMessages: ReceiptHandle, Body and RetryCount
	// are always populated, and ParsingSucceeded/Message/MessageType/
	// ParseError are resolved via an adapter-owned MessageParser (spec.md
	// §4.6 leaves the parse call site to the implementer; every adapter
	// here runs it inside Receive, since each knows its own envelope
	// shape). Returns a TransientReceiveError-typed *errors.AppError on a
	// recoverable transport failure; callers should log and retry rather
	// than treat it as fatal.
	Receive(ctx context.Context, maxMessages int) ([]*TransportMessage, error)

	// Delete acknowledges successful processing of a message, removing it
	// from the queue so it is not redelivered.
	Delete(ctx context.Context, receiptHandle string) error

	// Enqueue serializes message and pushes it directly onto this queue as
	// a self-built envelope, bypassing any topic — the durable side of
	// "publish local". The envelope is built with fromTopic false, so it
	// carries no fromSns attribute.
	Enqueue(ctx context.Context, message any, attributes map[string]string) error

	// Close releases any provider-side resources held by the client.
	Close(ctx context.Context) error
}
