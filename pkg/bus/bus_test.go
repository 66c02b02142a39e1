package bus_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/busline/msgbus/pkg/bus"
	"github.com/busline/msgbus/pkg/bus/adapters/memory"
)

type busTestOrderPlaced struct {
	ID string
}

type busTestOrderConfirmed struct {
	OrderID string
}

// TestStartableBusDispatchesAndPublishesEndToEnd wires a full
// StartableBus over the memory adapter, publishes one message onto its
// input topic, and asserts the registered handler's enlisted Publish
// reaches a separate observer queue once the pump's dispatch commits.
func TestStartableBusDispatchesAndPublishesEndToEnd(t *testing.T) {
	ctx := context.Background()
	broker := memory.NewBroker()
	codec := bus.NewJSONCodec()

	var cfg bus.Config
	cfg.NumberOfPollingInstances = 1
	cfg.MessageRetryCount = 3
	cfg.BatchSize = 10
	cfg.Codec = codec

	var wg sync.WaitGroup
	wg.Add(1)
	cfg.RegisterHandler(busTestOrderPlaced{}, bus.TypedHandlerFunc(func(scope bus.DispatchScope, payload busTestOrderPlaced) error {
		defer wg.Done()
		return scope.Send.Publish(scope.Context, busTestOrderConfirmed{OrderID: payload.ID})
	}))

	cfg.Types().Register(busTestOrderConfirmed{})

	inputQueue := memory.NewQueueClient(broker, "orders-input", codec, cfg.Types())
	topicPublisher := memory.NewTopicPublisher(broker, codec)
	cfg.InputQueue = inputQueue
	cfg.SendTopicPublisher = topicPublisher

	if err := topicPublisher.RegisterTypes(ctx, busTestOrderPlaced{}, busTestOrderConfirmed{}); err != nil {
		t.Fatalf("RegisterTypes: %v", err)
	}
	if err := inputQueue.Subscribe(ctx, busTestOrderPlaced{}); err != nil {
		t.Fatalf("Subscribe inputQueue: %v", err)
	}
	observer := memory.NewQueueClient(broker, "confirmations-observer", codec, cfg.Types())
	if err := observer.Subscribe(ctx, busTestOrderConfirmed{}); err != nil {
		t.Fatalf("Subscribe observer: %v", err)
	}

	startable, err := bus.NewStartableBus(cfg)
	if err != nil {
		t.Fatalf("NewStartableBus: %v", err)
	}

	startCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	startable.StartReceiving(startCtx)
	defer startable.StopReceiving(ctx)

	sendBus := startable.CreateSendBus()
	if err := sendBus.Publish(ctx, busTestOrderPlaced{ID: "order-1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitOrTimeout(t, &wg, 2*time.Second)

	receiveCtx, receiveCancel := context.WithTimeout(ctx, time.Second)
	defer receiveCancel()
	messages, err := observer.Receive(receiveCtx, 1)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(messages) != 1 || messages[0].Message != (busTestOrderConfirmed{OrderID: "order-1"}) {
		t.Fatalf("expected the handler's publish to reach the observer, got %v", messages)
	}
}

func TestNewStartableBusRejectsMissingInputQueue(t *testing.T) {
	broker := memory.NewBroker()
	codec := bus.NewJSONCodec()
	cfg := bus.Config{
		NumberOfPollingInstances: 1,
		SendTopicPublisher:       memory.NewTopicPublisher(broker, codec),
	}
	if _, err := bus.NewStartableBus(cfg); err == nil {
		t.Fatalf("expected an error when InputQueue is nil")
	}
}

func TestNewSendOnlyBusFactoryPublishLocalErrors(t *testing.T) {
	broker := memory.NewBroker()
	codec := bus.NewJSONCodec()
	cfg := bus.Config{SendTopicPublisher: memory.NewTopicPublisher(broker, codec)}

	factory, err := bus.NewSendOnlyBusFactory(cfg)
	if err != nil {
		t.Fatalf("NewSendOnlyBusFactory: %v", err)
	}
	sendBus := factory.CreateSendBus()
	if err := sendBus.PublishLocal(context.Background(), busTestOrderPlaced{ID: "x"}); err == nil {
		t.Fatalf("expected PublishLocal to fail on a send-only bus with no local queue")
	}
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for handler to run")
	}
}
