// Package snssqs adapts pkg/bus's TopicPublisher and QueueClient onto AWS
// SNS and SQS, the pairing spec.md §6's wire envelope is modeled on: a
// non-raw SNS-to-SQS subscription wraps every forwarded publish in exactly
// the {Message, MessageAttributes} envelope this package's MessageParser
// expects, so TopicPublisher.Publish needs to set only SNS message
// attributes and let SNS build the envelope on delivery. QueueClient's own
// Enqueue (the "publish local" path) has no SNS step to build it, so it
// constructs the same envelope shape directly via bus.BuildEnvelope.
package snssqs

import (
	"context"
	"strconv"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/busline/msgbus/pkg/bus"
	"github.com/busline/msgbus/pkg/errors"
	"github.com/busline/msgbus/pkg/validator"
)

// Config configures both the SNS topic-publisher and SQS queue-client
// sides of the adapter.
type Config struct {
	Region   string `validate:"required"`
	QueueURL string
	Codec    bus.Codec
}

func (c Config) codec() bus.Codec {
	if c.Codec != nil {
		return c.Codec
	}
	return bus.NewJSONCodec()
}

// TopicPublisher implements bus.TopicPublisher over AWS SNS: one topic per
// registered message type, created if missing and cached by ARN.
type TopicPublisher struct {
	client *sns.Client
	codec  bus.Codec
	cache  *bus.TopicCache
}

// NewTopicPublisher validates cfg and dials an AWS SNS client.
func NewTopicPublisher(ctx context.Context, cfg Config) (*TopicPublisher, error) {
	if err := validator.New().ValidateStruct(cfg); err != nil {
		return nil, errors.InvalidArgument("invalid snssqs config", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, errors.Internal("failed to load aws config", err)
	}

	return &TopicPublisher{client: sns.NewFromConfig(awsCfg), codec: cfg.codec(), cache: bus.NewTopicCache()}, nil
}

// RegisterTypes creates (or finds) the SNS topic for each sample's type
// and caches its ARN, per spec.md §4.2.
func (p *TopicPublisher) RegisterTypes(ctx context.Context, samples ...any) error {
	for _, sample := range samples {
		name := bus.TopicNameFor(sample)
		_, err := p.cache.GetOrCreate(name, func() (any, error) {
			out, err := p.client.CreateTopic(ctx, &sns.CreateTopicInput{Name: &name})
			if err != nil {
				return nil, errors.Internal("failed to create sns topic "+name, err)
			}
			return *out.TopicArn, nil
		})
		if err != nil {
			return bus.ErrConfiguration("registerTypes failed for "+name, err)
		}
	}
	return nil
}

// Publish looks up the topic ARN cached for message's type and publishes
// to it, attaching attributes plus the core-added messageType and
// fromSns=true markers as SNS message attributes so the forwarding SQS
// envelope carries them (spec.md §4.2/§6).
func (p *TopicPublisher) Publish(ctx context.Context, message any, attributes map[string]string) error {
	name := bus.TopicNameFor(message)
	arn, ok := p.cache.Get(name)
	if !ok {
		return bus.ErrUnknownTopic(name)
	}

	body, err := p.codec.Serialize(message)
	if err != nil {
		return errors.Internal("failed to serialize message", err)
	}

	msgAttrs := map[string]snstypes.MessageAttributeValue{
		bus.AttrMessageType: stringAttr(bus.FullyQualifiedTypeNameFor(message)),
		bus.AttrFromSNS:     stringAttr("True"),
	}
	for k, v := range attributes {
		msgAttrs[k] = stringAttr(v)
	}

	topicArn := arn.(string)
	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn:          &topicArn,
		Message:           &body,
		MessageAttributes: msgAttrs,
	})
	if err != nil {
		return bus.ErrPublish("sns publish failed", err)
	}
	return nil
}

// Close releases no persistent resources; the SNS client holds none.
func (p *TopicPublisher) Close(ctx context.Context) error { return nil }

func stringAttr(value string) snstypes.MessageAttributeValue {
	dataType := "String"
	return snstypes.MessageAttributeValue{DataType: &dataType, StringValue: &value}
}

// QueueClient implements bus.QueueClient over AWS SQS.
type QueueClient struct {
	client   *sqs.Client
	snsCl    *sns.Client
	queueURL string
	queueArn string
	codec    bus.Codec
	parser   *bus.MessageParser
}

// NewQueueClient validates cfg and dials AWS SQS (and SNS, for Subscribe).
func NewQueueClient(ctx context.Context, cfg Config, types *bus.TypeRegistry) (*QueueClient, error) {
	if err := validator.New().ValidateStruct(cfg); err != nil {
		return nil, errors.InvalidArgument("invalid snssqs config", err)
	}
	if cfg.QueueURL == "" {
		return nil, errors.InvalidArgument("QueueURL is required", nil)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, errors.Internal("failed to load aws config", err)
	}

	sqsClient := sqs.NewFromConfig(awsCfg)
	attrs, err := sqsClient.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       &cfg.QueueURL,
		AttributeNames: []sqstypes.QueueAttributeName{sqstypes.QueueAttributeNameQueueArn},
	})
	if err != nil {
		return nil, errors.Internal("failed to resolve queue arn", err)
	}

	return &QueueClient{
		client:   sqsClient,
		snsCl:    sns.NewFromConfig(awsCfg),
		queueURL: cfg.QueueURL,
		queueArn: attrs.Attributes[string(sqstypes.QueueAttributeNameQueueArn)],
		codec:    cfg.codec(),
		parser:   bus.NewMessageParser(cfg.codec(), types),
	}, nil
}

// Address returns the queue's URL, this queue's stable identifier.
func (q *QueueClient) Address() string { return q.queueURL }

// Subscribe binds this queue to the SNS topic derived from sample's type
// via a non-raw subscription, so SNS wraps every forwarded publish in the
// {Message, MessageAttributes} envelope this adapter's parser expects.
func (q *QueueClient) Subscribe(ctx context.Context, sample any) error {
	name := bus.TopicNameFor(sample)
	out, err := q.snsCl.CreateTopic(ctx, &sns.CreateTopicInput{Name: &name})
	if err != nil {
		return bus.ErrConfiguration("failed to resolve topic for subscribe", err)
	}

	protocol := "sqs"
	_, err = q.snsCl.Subscribe(ctx, &sns.SubscribeInput{
		TopicArn: out.TopicArn,
		Protocol: &protocol,
		Endpoint: &q.queueArn,
	})
	if err != nil {
		return bus.ErrConfiguration("failed to subscribe queue to topic "+name, err)
	}
	return nil
}

// Receive long-polls the queue for up to maxMessages messages, parsing
// each into a TransportMessage. Returns an empty slice, not an error, on
// context cancellation or the long-poll timing out with nothing
// available (spec.md §4.3).
func (q *QueueClient) Receive(ctx context.Context, maxMessages int) ([]*bus.TransportMessage, error) {
	if maxMessages <= 0 || maxMessages > 10 {
		maxMessages = 10
	}

	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              &q.queueURL,
		MaxNumberOfMessages:   int32(maxMessages),
		WaitTimeSeconds:       20,
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{
			sqstypes.MessageSystemAttributeNameApproximateReceiveCount,
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil
		}
		return nil, bus.ErrTransientReceive("sqs receive failed", err)
	}

	messages := make([]*bus.TransportMessage, 0, len(out.Messages))
	for _, raw := range out.Messages {
		receiveAttrs := map[string]string{}
		if v, ok := raw.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
			receiveAttrs[bus.AttrApproximateReceiveCount] = v
		}
		body := ""
		if raw.Body != nil {
			body = *raw.Body
		}
		handle := ""
		if raw.ReceiptHandle != nil {
			handle = *raw.ReceiptHandle
		}
		messages = append(messages, q.parser.Parse(handle, body, receiveAttrs))
	}
	return messages, nil
}

// Delete acknowledges the message, removing it from the queue.
func (q *QueueClient) Delete(ctx context.Context, receiptHandle string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &q.queueURL,
		ReceiptHandle: &receiptHandle,
	})
	if err != nil {
		return errors.Internal("sqs delete failed", err)
	}
	return nil
}

// Enqueue serializes message, builds its own wire envelope (no SNS step
// wraps it here), and sends it directly to this queue.
func (q *QueueClient) Enqueue(ctx context.Context, message any, attributes map[string]string) error {
	body, err := q.codec.Serialize(message)
	if err != nil {
		return errors.Internal("failed to serialize local message", err)
	}
	typeName := bus.FullyQualifiedTypeNameFor(message)
	envelope, err := bus.BuildEnvelope(body, typeName, false, attributes)
	if err != nil {
		return err
	}

	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &q.queueURL,
		MessageBody: &envelope,
	})
	if err != nil {
		return bus.ErrPublish("sqs send failed", err)
	}
	return nil
}

// Close releases no persistent resources; the SQS/SNS clients hold none.
func (q *QueueClient) Close(ctx context.Context) error { return nil }
