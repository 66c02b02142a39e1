/*
Package bus provides a typed pub/sub message bus over a cloud fan-out topic
service and a durable at-least-once queue service.

Producers publish typed messages to topics derived from the message's
fully-qualified type name. Consumers own a single input queue subscribed to
one or more topics, poll it with N concurrent MessagePump workers, decode
payloads through a Codec and TypeRegistry, dispatch them to registered
Handlers under a transactional scope, and retry or dead-letter on failure.

# Architecture

The package follows the same adapter pattern as the rest of this library:
  - Core types and interfaces live here (TransportMessage, Envelope, Codec,
    TopicPublisher, QueueClient, Dispatcher, MessagePump, TransactionalBus).
  - Concrete cloud transports live in pkg/bus/adapters/{driver}: snssqs
    (AWS SNS + SQS, the grounded reference pairing the wire envelope in this
    package is modeled on), kafka, rabbitmq, gcppubsub, and an in-process
    memory adapter for tests.

# Usage

	import (
	    "github.com/busline/msgbus/pkg/bus"
	    "github.com/busline/msgbus/pkg/bus/adapters/snssqs"
	)

	var cfg bus.Config
	cfg.RegisterHandler(&OrderCreated{}, NewOrderCreatedHandler)

	publisher, _ := snssqs.NewTopicPublisher(ctx, snssqs.Config{Region: "us-east-1"})
	queue, _ := snssqs.NewQueueClient(ctx, snssqs.Config{Region: "us-east-1", QueueURL: "..."}, cfg.Types())

	cfg.NumberOfPollingInstances = 4
	cfg.MessageRetryCount = 3
	cfg.InputQueue = queue
	cfg.SendTopicPublisher = publisher

	startable, err := bus.NewStartableBus(cfg)
	startable.StartReceiving(ctx)
	defer startable.StopReceiving(ctx)

	send := startable.CreateSendBus()
	send.Publish(ctx, &OrderCreated{ID: "123"})
*/
package bus
