// Package memory is an in-process TopicPublisher/QueueClient pairing for
// tests: a Broker holds topic->subscriber fan-out in memory, with no
// network or serialization round trip required by the transport itself
// (the envelope is still built and parsed exactly as every other adapter
// does, so tests exercise the same Codec/TypeRegistry/MessageParser path
// production adapters do).
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/busline/msgbus/pkg/bus"
	"github.com/google/uuid"
)

// Broker is the shared in-process fan-out table: topic name -> the set of
// queues subscribed to it. One Broker is shared by a TopicPublisher and
// every QueueClient that should be able to receive its publishes.
type Broker struct {
	mu     sync.RWMutex
	topics map[string][]*QueueClient
}

// NewBroker returns an empty in-process broker.
func NewBroker() *Broker {
	return &Broker{topics: make(map[string][]*QueueClient)}
}

func (b *Broker) subscribe(topic string, q *QueueClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics[topic] = append(b.topics[topic], q)
}

func (b *Broker) fanOut(topic, envelope string) {
	b.mu.RLock()
	subscribers := append([]*QueueClient{}, b.topics[topic]...)
	b.mu.RUnlock()

	for _, q := range subscribers {
		q.deliver(envelope)
	}
}

// TopicPublisher implements bus.TopicPublisher over a Broker.
type TopicPublisher struct {
	broker *Broker
	codec  bus.Codec
	cache  *bus.TopicCache
}

// NewTopicPublisher builds a TopicPublisher fanning out through broker.
func NewTopicPublisher(broker *Broker, codec bus.Codec) *TopicPublisher {
	if codec == nil {
		codec = bus.NewJSONCodec()
	}
	return &TopicPublisher{broker: broker, codec: codec, cache: bus.NewTopicCache()}
}

// RegisterTypes caches the topic name for each sample's type; the memory
// broker needs no upfront topic creation.
func (p *TopicPublisher) RegisterTypes(ctx context.Context, samples ...any) error {
	for _, sample := range samples {
		name := bus.TopicNameFor(sample)
		p.cache.Set(name, name)
	}
	return nil
}

// Publish serializes message, builds its wire envelope, and fans it out
// to every QueueClient subscribed to message's topic.
func (p *TopicPublisher) Publish(ctx context.Context, message any, attributes map[string]string) error {
	name := bus.TopicNameFor(message)
	if _, ok := p.cache.Get(name); !ok {
		return bus.ErrUnknownTopic(name)
	}

	body, err := p.codec.Serialize(message)
	if err != nil {
		return bus.ErrPublish("failed to serialize message", err)
	}
	typeName := bus.FullyQualifiedTypeNameFor(message)
	envelope, err := bus.BuildEnvelope(body, typeName, true, attributes)
	if err != nil {
		return err
	}

	p.broker.fanOut(name, envelope)
	return nil
}

// Close is a no-op: the memory broker holds no external resources.
func (p *TopicPublisher) Close(ctx context.Context) error { return nil }

// QueueClient implements bus.QueueClient as an in-memory channel fed by
// Broker.fanOut and by its own Enqueue.
type QueueClient struct {
	broker  *Broker
	address string
	codec   bus.Codec
	parser  *bus.MessageParser
	inbox   chan *bus.TransportMessage
}

// NewQueueClient builds a QueueClient named address, backed by broker.
func NewQueueClient(broker *Broker, address string, codec bus.Codec, types *bus.TypeRegistry) *QueueClient {
	if codec == nil {
		codec = bus.NewJSONCodec()
	}
	return &QueueClient{
		broker:  broker,
		address: address,
		codec:   codec,
		parser:  bus.NewMessageParser(codec, types),
		inbox:   make(chan *bus.TransportMessage, 256),
	}
}

// Address returns this queue's configured name.
func (q *QueueClient) Address() string { return q.address }

// Subscribe binds this queue to the topic derived from sample's type.
func (q *QueueClient) Subscribe(ctx context.Context, sample any) error {
	q.broker.subscribe(bus.TopicNameFor(sample), q)
	return nil
}

// deliver parses a fanned-out envelope and pushes it to this queue's
// inbox, dropping it (rather than blocking the publisher) if the inbox is
// full. Both topic fan-out and Enqueue deliver through here.
func (q *QueueClient) deliver(envelope string) {
	parsed := q.parser.Parse(uuid.NewString(), envelope, map[string]string{
		bus.AttrApproximateReceiveCount: "1",
	})

	select {
	case q.inbox <- parsed:
	default:
	}
}

// Receive drains up to maxMessages queued messages, blocking until at
// least one is available or ctx is cancelled; once one has arrived, it
// stops collecting after a short idle window.
func (q *QueueClient) Receive(ctx context.Context, maxMessages int) ([]*bus.TransportMessage, error) {
	var batch []*bus.TransportMessage

	select {
	case <-ctx.Done():
		return batch, nil
	case msg := <-q.inbox:
		batch = append(batch, msg)
	}

	for len(batch) < maxMessages {
		select {
		case msg := <-q.inbox:
			batch = append(batch, msg)
		case <-time.After(10 * time.Millisecond):
			return batch, nil
		case <-ctx.Done():
			return batch, nil
		}
	}
	return batch, nil
}

// Delete is a no-op: the in-memory inbox already removed the message when
// Receive drained it.
func (q *QueueClient) Delete(ctx context.Context, receiptHandle string) error { return nil }

// Enqueue serializes message, builds its wire envelope (fromSns=false),
// and pushes it directly onto this queue's own inbox.
func (q *QueueClient) Enqueue(ctx context.Context, message any, attributes map[string]string) error {
	body, err := q.codec.Serialize(message)
	if err != nil {
		return bus.ErrPublish("failed to serialize local message", err)
	}
	typeName := bus.FullyQualifiedTypeNameFor(message)
	envelope, err := bus.BuildEnvelope(body, typeName, false, attributes)
	if err != nil {
		return err
	}
	q.deliver(envelope)
	return nil
}

// Close is a no-op: the memory queue holds no external resources.
func (q *QueueClient) Close(ctx context.Context) error { return nil }
