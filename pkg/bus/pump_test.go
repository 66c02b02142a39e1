package bus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
)

type pumpTestMessage struct {
	Name string
}

// fakeQueueClient hands out one preloaded batch per Receive call (nil
// afterward) and records every receipt handle deleted, so a test can assert
// exactly which messages the pump acknowledged.
type fakeQueueClient struct {
	mu       sync.Mutex
	messages []*TransportMessage
	deleted  []string
	address  string
}

func (q *fakeQueueClient) Address() string { return q.address }
func (q *fakeQueueClient) Subscribe(ctx context.Context, sample any) error { return nil }

func (q *fakeQueueClient) Receive(ctx context.Context, maxMessages int) ([]*TransportMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch := q.messages
	q.messages = nil
	return batch, nil
}

func (q *fakeQueueClient) Delete(ctx context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, receiptHandle)
	return nil
}

func (q *fakeQueueClient) Enqueue(ctx context.Context, message any, attributes map[string]string) error {
	return nil
}
func (q *fakeQueueClient) Close(ctx context.Context) error { return nil }

func (q *fakeQueueClient) wasDeleted(handle string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, h := range q.deleted {
		if h == handle {
			return true
		}
	}
	return false
}

func pumpTestTypeName() string {
	return fullyQualifiedTypeName(reflect.TypeOf(pumpTestMessage{}))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPumpDispatcher(handler func(scope DispatchScope, payload pumpTestMessage) error, faultHandler func(scope DispatchScope, payload pumpTestMessage, cause error) error) *Dispatcher {
	types := NewTypeRegistry()
	registry := NewHandlerRegistry(types)
	if handler != nil {
		registry.RegisterHandler(pumpTestMessage{}, TypedHandlerFunc(handler))
	}
	if faultHandler != nil {
		registry.RegisterFaultHandler(pumpTestMessage{}, TypedFaultHandlerFunc(faultHandler))
	}
	return NewDispatcher(registry, registry.Build())
}

func TestPumpDeletesMessageOnSuccessfulDispatch(t *testing.T) {
	dispatcher := newPumpDispatcher(func(scope DispatchScope, payload pumpTestMessage) error {
		return nil
	}, nil)
	queue := &fakeQueueClient{address: "q", messages: []*TransportMessage{
		{ReceiptHandle: "h1", RetryCount: 1, MessageTypeName: pumpTestTypeName(), Message: pumpTestMessage{Name: "a"}, ParsingSucceeded: true},
	}}
	pump := NewMessagePump("test-pump", queue, dispatcher, &fakeSendBus{}, 5, 10)

	pump.pollOnce(context.Background(), discardLogger())

	if !queue.wasDeleted("h1") {
		t.Fatalf("expected successfully dispatched message to be deleted")
	}
}

func TestPumpLeavesMessageForRedeliveryBelowMaxRetries(t *testing.T) {
	dispatcher := newPumpDispatcher(func(scope DispatchScope, payload pumpTestMessage) error {
		return errors.New("handler failed")
	}, nil)
	queue := &fakeQueueClient{address: "q", messages: []*TransportMessage{
		{ReceiptHandle: "h2", RetryCount: 1, MessageTypeName: pumpTestTypeName(), Message: pumpTestMessage{Name: "a"}, ParsingSucceeded: true},
	}}
	pump := NewMessagePump("test-pump", queue, dispatcher, &fakeSendBus{}, 5, 10)

	pump.pollOnce(context.Background(), discardLogger())

	if queue.wasDeleted("h2") {
		t.Fatalf("expected message below max retries to be left for redelivery, not deleted")
	}
}

func TestPumpDeadLettersAfterMaxRetries(t *testing.T) {
	var faultSeen pumpTestMessage
	dispatcher := newPumpDispatcher(func(scope DispatchScope, payload pumpTestMessage) error {
		return errors.New("handler failed")
	}, func(scope DispatchScope, payload pumpTestMessage, cause error) error {
		faultSeen = payload
		return nil
	})
	queue := &fakeQueueClient{address: "q", messages: []*TransportMessage{
		{ReceiptHandle: "h3", RetryCount: 5, MessageTypeName: pumpTestTypeName(), Message: pumpTestMessage{Name: "exhausted"}, ParsingSucceeded: true},
	}}
	pump := NewMessagePump("test-pump", queue, dispatcher, &fakeSendBus{}, 5, 10)

	pump.pollOnce(context.Background(), discardLogger())

	if !queue.wasDeleted("h3") {
		t.Fatalf("expected exhausted-retry message to be dead-lettered (deleted)")
	}
	if faultSeen.Name != "exhausted" {
		t.Fatalf("expected the fault handler to observe the decoded payload, got %#v", faultSeen)
	}
}

func TestPumpEscalatesParseFailureToTransportFaultAndDeletes(t *testing.T) {
	types := NewTypeRegistry()
	registry := NewHandlerRegistry(types)
	var transportFaultSeen bool
	registry.RegisterTransportFaultHandler(TypedFaultHandlerFunc(func(scope DispatchScope, payload *TransportMessage, cause error) error {
		transportFaultSeen = true
		return nil
	}))
	dispatcher := NewDispatcher(registry, registry.Build())

	queue := &fakeQueueClient{address: "q", messages: []*TransportMessage{
		{ReceiptHandle: "h4", RetryCount: 1, ParsingSucceeded: false, ParseError: ErrParse("bad envelope", nil)},
	}}
	pump := NewMessagePump("test-pump", queue, dispatcher, &fakeSendBus{}, 5, 10)

	pump.pollOnce(context.Background(), discardLogger())

	if !transportFaultSeen {
		t.Fatalf("expected the transport fault handler to run for an unparsed message")
	}
	if !queue.wasDeleted("h4") {
		t.Fatalf("expected an unparseable message to be deleted after escalation")
	}
}

func TestPumpStartStopJoinTransitionsState(t *testing.T) {
	dispatcher := newPumpDispatcher(nil, nil)
	queue := &fakeQueueClient{address: "q"}
	pump := NewMessagePump("test-pump", queue, dispatcher, &fakeSendBus{}, 5, 10)

	if pump.State() != PumpCreated {
		t.Fatalf("expected initial state Created, got %s", pump.State())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pump.Start(ctx)
	pump.Stop()
	pump.Join()

	if pump.State() != PumpStopped {
		t.Fatalf("expected state Stopped after Join, got %s", pump.State())
	}
}
