package memory_test

import (
	"testing"

	"github.com/busline/msgbus/pkg/bus"
	"github.com/busline/msgbus/pkg/bus/adapters/memory"
	"github.com/busline/msgbus/pkg/bus/bustest"
)

func TestMemoryAdapterConformsToTopicPublisher(t *testing.T) {
	broker := memory.NewBroker()
	types := bus.NewTypeRegistry()
	codec := bus.NewJSONCodec()

	publisher := memory.NewTopicPublisher(broker, codec)
	queue := memory.NewQueueClient(broker, "conform-queue", codec, types)

	bustest.ConformTopicPublisher(t, publisher, queue, types)
}

func TestMemoryAdapterConformsToQueueClient(t *testing.T) {
	broker := memory.NewBroker()
	types := bus.NewTypeRegistry()
	codec := bus.NewJSONCodec()

	queue := memory.NewQueueClient(broker, "conform-local-queue", codec, types)

	bustest.ConformQueueClient(t, queue, types)
}

func TestMemoryAdapterFansOutToMultipleSubscribers(t *testing.T) {
	broker := memory.NewBroker()
	types := bus.NewTypeRegistry()
	codec := bus.NewJSONCodec()
	types.Register(bustest.ConformMessage{})

	publisher := memory.NewTopicPublisher(broker, codec)
	queueA := memory.NewQueueClient(broker, "queue-a", codec, types)
	queueB := memory.NewQueueClient(broker, "queue-b", codec, types)

	ctx := t.Context()
	if err := publisher.RegisterTypes(ctx, bustest.ConformMessage{}); err != nil {
		t.Fatalf("RegisterTypes: %v", err)
	}
	if err := queueA.Subscribe(ctx, bustest.ConformMessage{}); err != nil {
		t.Fatalf("Subscribe queueA: %v", err)
	}
	if err := queueB.Subscribe(ctx, bustest.ConformMessage{}); err != nil {
		t.Fatalf("Subscribe queueB: %v", err)
	}

	if err := publisher.Publish(ctx, bustest.ConformMessage{Name: "fanout"}, map[string]string{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for _, q := range []*memory.QueueClient{queueA, queueB} {
		messages, err := q.Receive(ctx, 1)
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		if len(messages) != 1 {
			t.Fatalf("expected 1 message, got %d", len(messages))
		}
		if !messages[0].ParsingSucceeded {
			t.Fatalf("parse failed: %v", messages[0].ParseError)
		}
	}
}
