// Package rabbitmq adapts pkg/bus's TopicPublisher and QueueClient onto
// RabbitMQ via rabbitmq/amqp091-go: a fanout exchange plays the topic role,
// and a queue bound to it plays the durable at-least-once queue role.
// RabbitMQ has no native receive-count attribute, so retryCount is carried
// as an "x-retry-count" header the pump's caller increments on each
// republish, falling back to the delivery's own Redelivered flag the first
// time a message comes back unheadered.
package rabbitmq

import (
	"context"
	"strconv"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/busline/msgbus/pkg/bus"
	"github.com/busline/msgbus/pkg/errors"
)

const retryCountHeader = "x-retry-count"

// Config configures the AMQP connection shared by a TopicPublisher and
// QueueClient pairing.
type Config struct {
	URL       string
	QueueName string // the durable queue this QueueClient drains
	Codec     bus.Codec
}

func (c Config) codec() bus.Codec {
	if c.Codec != nil {
		return c.Codec
	}
	return bus.NewJSONCodec()
}

// TopicPublisher implements bus.TopicPublisher over a RabbitMQ fanout
// exchange per registered message type.
type TopicPublisher struct {
	cfg     Config
	conn    *amqp.Connection
	channel *amqp.Channel
	cache   *bus.TopicCache
}

// NewTopicPublisher dials url and returns a ready TopicPublisher.
func NewTopicPublisher(cfg Config) (*TopicPublisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, errors.Internal("failed to dial rabbitmq", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Internal("failed to open rabbitmq channel", err)
	}
	return &TopicPublisher{cfg: cfg, conn: conn, channel: channel, cache: bus.NewTopicCache()}, nil
}

// RegisterTypes declares a durable fanout exchange for each sample's type,
// per spec.md §4.2.
func (p *TopicPublisher) RegisterTypes(ctx context.Context, samples ...any) error {
	for _, sample := range samples {
		name := bus.TopicNameFor(sample)
		_, err := p.cache.GetOrCreate(name, func() (any, error) {
			if err := p.channel.ExchangeDeclare(name, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
				return nil, errors.Internal("failed to declare exchange "+name, err)
			}
			return name, nil
		})
		if err != nil {
			return bus.ErrConfiguration("registerTypes failed for "+name, err)
		}
	}
	return nil
}

// Publish serializes message, builds its wire envelope, and publishes it to
// the fanout exchange registered for message's type.
func (p *TopicPublisher) Publish(ctx context.Context, message any, attributes map[string]string) error {
	name := bus.TopicNameFor(message)
	if _, ok := p.cache.Get(name); !ok {
		return bus.ErrUnknownTopic(name)
	}

	body, err := p.cfg.codec().Serialize(message)
	if err != nil {
		return errors.Internal("failed to serialize message", err)
	}
	typeName := bus.FullyQualifiedTypeNameFor(message)
	envelope, err := bus.BuildEnvelope(body, typeName, true, attributes)
	if err != nil {
		return err
	}

	err = p.channel.PublishWithContext(ctx, name, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        []byte(envelope),
		Headers:     amqp.Table{retryCountHeader: int32(1)},
	})
	if err != nil {
		return bus.ErrPublish("rabbitmq publish failed", err)
	}
	return nil
}

// Close tears down the channel and connection.
func (p *TopicPublisher) Close(ctx context.Context) error {
	_ = p.channel.Close()
	return p.conn.Close()
}

// QueueClient implements bus.QueueClient over a durable RabbitMQ queue.
type QueueClient struct {
	cfg     Config
	conn    *amqp.Connection
	channel *amqp.Channel
	parser  *bus.MessageParser

	mu       sync.Mutex
	deliver  <-chan amqp.Delivery
	pending  map[string]amqp.Delivery // receiptHandle -> delivery, for Delete's Ack
	started  bool
}

// NewQueueClient dials url and declares cfg.QueueName as a durable queue.
func NewQueueClient(cfg Config, types *bus.TypeRegistry) (*QueueClient, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, errors.Internal("failed to dial rabbitmq", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Internal("failed to open rabbitmq channel", err)
	}
	if err := channel.Qos(10, 0, false); err != nil {
		conn.Close()
		return nil, errors.Internal("failed to set channel qos", err)
	}
	if _, err := channel.QueueDeclare(cfg.QueueName, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, errors.Internal("failed to declare queue "+cfg.QueueName, err)
	}

	return &QueueClient{
		cfg:     cfg,
		conn:    conn,
		channel: channel,
		parser:  bus.NewMessageParser(cfg.codec(), types),
		pending: make(map[string]amqp.Delivery),
	}, nil
}

// Address returns the queue's name, this queue's stable identifier.
func (q *QueueClient) Address() string { return q.cfg.QueueName }

// Subscribe binds this queue to the fanout exchange derived from sample's
// type and, on first call, starts consuming from it.
func (q *QueueClient) Subscribe(ctx context.Context, sample any) error {
	name := bus.TopicNameFor(sample)
	if err := q.channel.ExchangeDeclare(name, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return bus.ErrConfiguration("failed to declare exchange "+name, err)
	}
	if err := q.channel.QueueBind(q.cfg.QueueName, "", name, false, nil); err != nil {
		return bus.ErrConfiguration("failed to bind queue to exchange "+name, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return nil
	}
	deliveries, err := q.channel.Consume(q.cfg.QueueName, "", false, false, false, false, nil)
	if err != nil {
		return bus.ErrConfiguration("failed to start consuming "+q.cfg.QueueName, err)
	}
	q.deliver = deliveries
	q.started = true
	return nil
}

// Receive drains up to maxMessages deliveries already queued locally by the
// AMQP client library, parsing each and holding it unacked in pending so
// Delete can later acknowledge it by receipt handle.
func (q *QueueClient) Receive(ctx context.Context, maxMessages int) ([]*bus.TransportMessage, error) {
	q.mu.Lock()
	deliveries := q.deliver
	q.mu.Unlock()
	if deliveries == nil {
		return nil, nil
	}

	select {
	case <-ctx.Done():
		return nil, nil
	case d, ok := <-deliveries:
		if !ok {
			return nil, nil
		}
		messages := []*bus.TransportMessage{q.parseDelivery(d)}
		for len(messages) < maxMessages {
			select {
			case d, ok := <-deliveries:
				if !ok {
					return messages, nil
				}
				messages = append(messages, q.parseDelivery(d))
			default:
				return messages, nil
			}
		}
		return messages, nil
	}
}

func (q *QueueClient) parseDelivery(d amqp.Delivery) *bus.TransportMessage {
	retryCount := 1
	if raw, ok := d.Headers[retryCountHeader]; ok {
		if n, ok := raw.(int32); ok && n > 0 {
			retryCount = int(n)
		}
	} else if d.Redelivered {
		retryCount = 2
	}

	receiptHandle := strconv.FormatUint(d.DeliveryTag, 10)
	q.mu.Lock()
	q.pending[receiptHandle] = d
	q.mu.Unlock()

	return q.parser.Parse(receiptHandle, string(d.Body), map[string]string{
		bus.AttrApproximateReceiveCount: strconv.Itoa(retryCount),
	})
}

// Delete acknowledges the delivery identified by receiptHandle, removing it
// from the queue.
func (q *QueueClient) Delete(ctx context.Context, receiptHandle string) error {
	q.mu.Lock()
	d, ok := q.pending[receiptHandle]
	delete(q.pending, receiptHandle)
	q.mu.Unlock()
	if !ok {
		return bus.ErrConfiguration("unknown receipt handle "+receiptHandle, nil)
	}
	if err := d.Ack(false); err != nil {
		return errors.Internal("rabbitmq ack failed", err)
	}
	return nil
}

// Enqueue serializes message, builds its own wire envelope (no exchange
// step wraps it here), and publishes it directly to this queue via the
// default exchange, keyed by queue name.
func (q *QueueClient) Enqueue(ctx context.Context, message any, attributes map[string]string) error {
	body, err := q.cfg.codec().Serialize(message)
	if err != nil {
		return errors.Internal("failed to serialize local message", err)
	}
	typeName := bus.FullyQualifiedTypeNameFor(message)
	envelope, err := bus.BuildEnvelope(body, typeName, false, attributes)
	if err != nil {
		return err
	}

	err = q.channel.PublishWithContext(ctx, "", q.cfg.QueueName, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        []byte(envelope),
		Headers:     amqp.Table{retryCountHeader: int32(1)},
	})
	if err != nil {
		return bus.ErrPublish("rabbitmq local enqueue failed", err)
	}
	return nil
}

// Close tears down the channel and connection.
func (q *QueueClient) Close(ctx context.Context) error {
	_ = q.channel.Close()
	return q.conn.Close()
}
