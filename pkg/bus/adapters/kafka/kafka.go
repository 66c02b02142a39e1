// Package kafka adapts pkg/bus's TopicPublisher and QueueClient interfaces
// onto IBM/sarama. A Kafka topic plays both the TopicPublisher's topic role
// and, via a partition-keyed consumer group, the QueueClient's single
// input queue role: there is no separate broker-side queue primitive, and
// the consumer group joins the single cfg.QueueTopic rather than the
// per-type topics publishers produce to. retryCount, which Kafka has no native receive-count
// attribute for, is carried as a "retry-count" record header incremented
// on each republish by the pump's caller.
package kafka

import (
	"context"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/busline/msgbus/pkg/bus"
	"github.com/busline/msgbus/pkg/concurrency"
	"github.com/busline/msgbus/pkg/errors"
	"github.com/google/uuid"
)

const retryCountHeader = "retry-count"

// Config configures both the producer and consumer group sides of the
// adapter.
type Config struct {
	Brokers       []string
	ConsumerGroup string
	QueueTopic    string // the topic this QueueClient's consumer group joins
	Codec         bus.Codec
	Version       sarama.KafkaVersion
}

func (c Config) codec() bus.Codec {
	if c.Codec != nil {
		return c.Codec
	}
	return bus.NewJSONCodec()
}

// TopicPublisher publishes serialized envelopes to Kafka topics named
// after the declared message type, one topic per registered type.
type TopicPublisher struct {
	cfg      Config
	producer sarama.SyncProducer
	cache    *bus.TopicCache
}

// NewTopicPublisher dials brokers and returns a ready TopicPublisher.
func NewTopicPublisher(cfg Config) (*TopicPublisher, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	if cfg.Version != (sarama.KafkaVersion{}) {
		saramaCfg.Version = cfg.Version
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, errors.Internal("failed to create kafka producer", err)
	}

	return &TopicPublisher{cfg: cfg, producer: producer, cache: bus.NewTopicCache()}, nil
}

// RegisterTypes records the Kafka topic name for each sample's type.
// Kafka auto-creates topics on first produce in most cluster
// configurations, so this only populates the cache; it issues no admin
// call.
func (p *TopicPublisher) RegisterTypes(ctx context.Context, samples ...any) error {
	for _, sample := range samples {
		name := bus.TopicNameFor(sample)
		p.cache.Set(name, name)
	}
	return nil
}

// Publish serializes message and produces it to the topic registered for
// message's concrete type.
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

	headers := []sarama.RecordHeader{
		{Key: []byte(retryCountHeader), Value: []byte("1")},
	}

	kafkaMsg := &sarama.ProducerMessage{
		Topic:     name,
		Value:     sarama.StringEncoder(envelope),
		Headers:   headers,
		Timestamp: time.Now(),
	}

	if _, _, err := p.producer.SendMessage(kafkaMsg); err != nil {
		return bus.ErrPublish("kafka produce failed", err)
	}
	return nil
}

// Close shuts down the underlying sync producer.
func (p *TopicPublisher) Close(ctx context.Context) error {
	return p.producer.Close()
}

// QueueClient implements bus.QueueClient over a sarama consumer group
// joined to a single Kafka topic, standing in for a provider queue.
type QueueClient struct {
	cfg      Config
	producer sarama.SyncProducer // used by Enqueue, shares the publisher's topic role
	group    sarama.ConsumerGroup
	parser   *bus.MessageParser

	mu      concurrency.SmartMutex
	cancel  context.CancelFunc
	inbox   chan *bus.TransportMessage
	started bool
}

// NewQueueClient dials brokers and returns a QueueClient whose consumer
// group, once Subscribe is called, joins cfg.QueueTopic.
func NewQueueClient(cfg Config, types *bus.TypeRegistry) (*QueueClient, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Return.Errors = true
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	if cfg.Version != (sarama.KafkaVersion{}) {
		saramaCfg.Version = cfg.Version
	}

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, saramaCfg)
	if err != nil {
		return nil, errors.Internal("failed to create kafka consumer group", err)
	}

	producerCfg := sarama.NewConfig()
	producerCfg.Producer.Return.Successes = true
	producer, err := sarama.NewSyncProducer(cfg.Brokers, producerCfg)
	if err != nil {
		group.Close()
		return nil, errors.Internal("failed to create kafka producer for local enqueue", err)
	}

	return &QueueClient{
		cfg:      cfg,
		producer: producer,
		group:    group,
		parser:   bus.NewMessageParser(cfg.codec(), types),
		inbox:    make(chan *bus.TransportMessage, 256),
	}, nil
}

// Address returns the consumer group id, this queue's stable identifier.
func (q *QueueClient) Address() string {
	return q.cfg.ConsumerGroup
}

// Subscribe starts the background consume loop on the first call, joining
// the consumer group to cfg.QueueTopic only. sample's type is not used: the
// topic derived from it is not joined, and later calls do nothing.
func (q *QueueClient) Subscribe(ctx context.Context, sample any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return nil
	}

	consumeCtx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.started = true

	handler := &consumerGroupHandler{inbox: q.inbox, parser: q.parser}
	go func() {
		for {
			if consumeCtx.Err() != nil {
				return
			}
			if err := q.group.Consume(consumeCtx, []string{q.cfg.QueueTopic}, handler); err != nil {
				if consumeCtx.Err() != nil {
					return
				}
				time.Sleep(time.Second)
			}
		}
	}()
	return nil
}

// Receive drains up to maxMessages already-parsed messages from the
// internal inbox channel, blocking until at least one arrives or ctx is
// cancelled; once one has arrived, it stops collecting after a short idle
// window.
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
		case <-time.After(50 * time.Millisecond):
			return batch, nil
		case <-ctx.Done():
			return batch, nil
		}
	}
	return batch, nil
}

// Delete is a no-op: sarama's consumer group auto-commits offsets as
// ConsumeClaim marks messages, so acknowledgement already happened by the
// time Receive returned this message. Kept as a real no-op (not an error)
// since the pump always calls it on success.
func (q *QueueClient) Delete(ctx context.Context, receiptHandle string) error {
	return nil
}

// Enqueue serializes message and publishes it directly to the queue's own
// topic, standing in for a true local-queue enqueue that Kafka has no
// equivalent for.
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

	headers := []sarama.RecordHeader{
		{Key: []byte(retryCountHeader), Value: []byte("1")},
	}

	kafkaMsg := &sarama.ProducerMessage{
		Topic:     q.cfg.QueueTopic,
		Value:     sarama.StringEncoder(envelope),
		Headers:   headers,
		Timestamp: time.Now(),
	}
	if _, _, err := q.producer.SendMessage(kafkaMsg); err != nil {
		return bus.ErrPublish("kafka local enqueue failed", err)
	}
	return nil
}

// Close shuts down the consumer group and producer.
func (q *QueueClient) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Unlock()

	if err := q.group.Close(); err != nil {
		return err
	}
	return q.producer.Close()
}

// consumerGroupHandler parses each claimed Kafka message into a
// bus.TransportMessage and forwards it to inbox, marking it consumed
// immediately (Kafka has no separate delete step).
type consumerGroupHandler struct {
	inbox  chan *bus.TransportMessage
	parser *bus.MessageParser
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		retryCount := 1
		for _, hdr := range msg.Headers {
			if string(hdr.Key) == retryCountHeader {
				if n, err := strconv.Atoi(string(hdr.Value)); err == nil && n > 0 {
					retryCount = n
				}
			}
		}

		receiveAttrs := map[string]string{
			bus.AttrApproximateReceiveCount: strconv.Itoa(retryCount),
		}
		receiptHandle := uuid.NewString()
		parsed := h.parser.Parse(receiptHandle, string(msg.Value), receiveAttrs)

		select {
		case h.inbox <- parsed:
		case <-session.Context().Done():
			return nil
		}
		session.MarkMessage(msg, "")
	}
	return nil
}
