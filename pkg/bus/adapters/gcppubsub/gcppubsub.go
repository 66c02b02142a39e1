// Package gcppubsub adapts pkg/bus's TopicPublisher and QueueClient onto
// Google Cloud Pub/Sub: a topic plays the fan-out TopicPublisher role and a
// subscription bound to it plays the durable at-least-once QueueClient
// role. Unlike SNS/SQS or RabbitMQ, GCP Pub/Sub already tracks a message's
// redelivery count natively on Message.DeliveryAttempt, so retryCount here
// needs no custom header plumbing.
package gcppubsub

import (
	"context"
	"strconv"
	"sync"

	"cloud.google.com/go/pubsub/v2"

	"github.com/busline/msgbus/pkg/bus"
	"github.com/busline/msgbus/pkg/errors"
)

// Config configures the GCP project shared by a TopicPublisher and
// QueueClient pairing.
type Config struct {
	ProjectID      string
	SubscriptionID string // the subscription this QueueClient drains
	Codec          bus.Codec
}

func (c Config) codec() bus.Codec {
	if c.Codec != nil {
		return c.Codec
	}
	return bus.NewJSONCodec()
}

// TopicPublisher implements bus.TopicPublisher over GCP Pub/Sub topics, one
// per registered message type.
type TopicPublisher struct {
	cfg        Config
	client     *pubsub.Client
	publishers map[string]*pubsub.Publisher
	cache      *bus.TopicCache
	mu         sync.Mutex
}

// NewTopicPublisher dials GCP Pub/Sub for cfg.ProjectID.
func NewTopicPublisher(ctx context.Context, cfg Config) (*TopicPublisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, errors.Internal("failed to create pubsub client", err)
	}
	return &TopicPublisher{
		cfg:        cfg,
		client:     client,
		publishers: make(map[string]*pubsub.Publisher),
		cache:      bus.NewTopicCache(),
	}, nil
}

// RegisterTypes creates (or finds) the topic for each sample's type and
// caches a Publisher bound to it, per spec.md §4.2.
func (p *TopicPublisher) RegisterTypes(ctx context.Context, samples ...any) error {
	for _, sample := range samples {
		name := bus.TopicNameFor(sample)
		_, err := p.cache.GetOrCreate(name, func() (any, error) {
			admin := p.client.TopicAdminClient
			topicPath := "projects/" + p.cfg.ProjectID + "/topics/" + name
			if _, err := admin.GetTopic(ctx, &pubsub.GetTopicRequest{Topic: topicPath}); err != nil {
				if _, err := admin.CreateTopic(ctx, &pubsub.Topic{Name: topicPath}); err != nil {
					return nil, errors.Internal("failed to create topic "+name, err)
				}
			}

			p.mu.Lock()
			p.publishers[name] = p.client.Publisher(name)
			p.mu.Unlock()
			return name, nil
		})
		if err != nil {
			return bus.ErrConfiguration("registerTypes failed for "+name, err)
		}
	}
	return nil
}

// Publish serializes message, builds its wire envelope, and publishes it to
// the topic registered for message's type. The attributes travel inside the
// JSON envelope in the message Data; no native Pub/Sub attributes are set.
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

	p.mu.Lock()
	publisher := p.publishers[name]
	p.mu.Unlock()
	if publisher == nil {
		return bus.ErrUnknownTopic(name)
	}

	result := publisher.Publish(ctx, &pubsub.Message{Data: []byte(envelope)})
	if _, err := result.Get(ctx); err != nil {
		return bus.ErrPublish("pubsub publish failed", err)
	}
	return nil
}

// Close shuts down every cached Publisher and the underlying client.
func (p *TopicPublisher) Close(ctx context.Context) error {
	p.mu.Lock()
	for _, publisher := range p.publishers {
		publisher.Stop()
	}
	p.mu.Unlock()
	return p.client.Close()
}

// QueueClient implements bus.QueueClient over a GCP Pub/Sub subscription.
type QueueClient struct {
	cfg    Config
	client *pubsub.Client
	sub    *pubsub.Subscriber
	parser *bus.MessageParser

	mu      sync.Mutex
	inbox   chan *bus.TransportMessage
	pending map[string]*pubsub.Message
	started bool
	cancel  context.CancelFunc
}

// NewQueueClient dials GCP Pub/Sub and binds to cfg.SubscriptionID.
func NewQueueClient(ctx context.Context, cfg Config, types *bus.TypeRegistry) (*QueueClient, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, errors.Internal("failed to create pubsub client", err)
	}
	return &QueueClient{
		cfg:     cfg,
		client:  client,
		sub:     client.Subscriber(cfg.SubscriptionID),
		parser:  bus.NewMessageParser(cfg.codec(), types),
		inbox:   make(chan *bus.TransportMessage, 256),
		pending: make(map[string]*pubsub.Message),
	}, nil
}

// Address returns the subscription id, this queue's stable identifier.
func (q *QueueClient) Address() string { return q.cfg.SubscriptionID }

// Subscribe creates cfg.SubscriptionID bound to the topic derived from
// sample's type if the subscription does not exist yet, starting the
// background receive loop on first call. An existing subscription is left
// bound to whatever topic it already has, so later calls for other types
// bind nothing new.
func (q *QueueClient) Subscribe(ctx context.Context, sample any) error {
	name := bus.TopicNameFor(sample)
	admin := q.client.SubscriptionAdminClient
	subPath := "projects/" + q.cfg.ProjectID + "/subscriptions/" + q.cfg.SubscriptionID
	topicPath := "projects/" + q.cfg.ProjectID + "/topics/" + name

	if _, err := admin.GetSubscription(ctx, &pubsub.GetSubscriptionRequest{Subscription: subPath}); err != nil {
		_, err := admin.CreateSubscription(ctx, &pubsub.Subscription{
			Name:  subPath,
			Topic: topicPath,
		})
		if err != nil {
			return bus.ErrConfiguration("failed to create subscription "+q.cfg.SubscriptionID, err)
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return nil
	}
	receiveCtx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.started = true

	go func() {
		_ = q.sub.Receive(receiveCtx, func(ctx context.Context, msg *pubsub.Message) {
			q.deliver(msg)
		})
	}()
	return nil
}

func (q *QueueClient) deliver(msg *pubsub.Message) {
	retryCount := 1
	if msg.DeliveryAttempt != nil && *msg.DeliveryAttempt > 0 {
		retryCount = *msg.DeliveryAttempt
	}

	q.mu.Lock()
	q.pending[msg.ID] = msg
	q.mu.Unlock()

	parsed := q.parser.Parse(msg.ID, string(msg.Data), map[string]string{
		bus.AttrApproximateReceiveCount: strconv.Itoa(retryCount),
	})

	select {
	case q.inbox <- parsed:
	default:
		msg.Nack()
		q.mu.Lock()
		delete(q.pending, msg.ID)
		q.mu.Unlock()
	}
}

// Receive drains up to maxMessages already-parsed messages from the
// internal inbox channel, blocking until at least one arrives or ctx is
// cancelled.
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
		default:
			return batch, nil
		}
	}
	return batch, nil
}

// Delete acks the message identified by receiptHandle (its Pub/Sub message
// ID), removing it from the subscription's outstanding set.
func (q *QueueClient) Delete(ctx context.Context, receiptHandle string) error {
	q.mu.Lock()
	msg, ok := q.pending[receiptHandle]
	delete(q.pending, receiptHandle)
	q.mu.Unlock()
	if !ok {
		return bus.ErrConfiguration("unknown receipt handle "+receiptHandle, nil)
	}
	msg.Ack()
	return nil
}

// Enqueue serializes message, builds its own wire envelope, and publishes
// it directly to the topic whose ID equals cfg.SubscriptionID, standing in
// for a true local-queue enqueue Pub/Sub has no equivalent for.
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

	publisher := q.client.Publisher(q.cfg.SubscriptionID)
	defer publisher.Stop()
	result := publisher.Publish(ctx, &pubsub.Message{Data: []byte(envelope)})
	if _, err := result.Get(ctx); err != nil {
		return bus.ErrPublish("pubsub local enqueue failed", err)
	}
	return nil
}

// Close stops the background receive loop and closes the client.
func (q *QueueClient) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Unlock()
	return q.client.Close()
}
