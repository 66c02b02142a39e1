package bus

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/busline/msgbus/pkg/bus")

// instrumentedTopicPublisher wraps a TopicPublisher with an OpenTelemetry
// span per publish, correlated with the structured logs pkg/logger emits
// via trace-id/span-id injection.
type instrumentedTopicPublisher struct {
	TopicPublisher
	name string
}

// NewInstrumentedTopicPublisher wraps publisher with tracing spans; name
// identifies the adapter (e.g. "snssqs", "kafka") in span attributes.
func NewInstrumentedTopicPublisher(publisher TopicPublisher, name string) TopicPublisher {
	return &instrumentedTopicPublisher{TopicPublisher: publisher, name: name}
}

func (p *instrumentedTopicPublisher) Publish(ctx context.Context, message any, attributes map[string]string) error {
	ctx, span := tracer.Start(ctx, "bus.publish", trace.WithAttributes(
		attribute.String("bus.adapter", p.name),
		attribute.String("bus.message_id", uuid.NewString()),
	))
	defer span.End()

	if err := p.TopicPublisher.Publish(ctx, message, attributes); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// instrumentedQueueClient wraps a QueueClient with tracing spans around
// Receive and Delete, the two calls that matter most for end-to-end
// message latency.
type instrumentedQueueClient struct {
	QueueClient
	name string
}

// NewInstrumentedQueueClient wraps client with tracing spans; name
// identifies the adapter in span attributes.
func NewInstrumentedQueueClient(client QueueClient, name string) QueueClient {
	return &instrumentedQueueClient{QueueClient: client, name: name}
}

func (c *instrumentedQueueClient) Receive(ctx context.Context, maxMessages int) ([]*TransportMessage, error) {
	ctx, span := tracer.Start(ctx, "bus.receive", trace.WithAttributes(
		attribute.String("bus.adapter", c.name),
		attribute.Int("bus.max_messages", maxMessages),
	))
	defer span.End()

	messages, err := c.QueueClient.Receive(ctx, maxMessages)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("bus.messages_received", len(messages)))
	return messages, nil
}

func (c *instrumentedQueueClient) Delete(ctx context.Context, receiptHandle string) error {
	ctx, span := tracer.Start(ctx, "bus.delete", trace.WithAttributes(
		attribute.String("bus.adapter", c.name),
	))
	defer span.End()

	if err := c.QueueClient.Delete(ctx, receiptHandle); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
