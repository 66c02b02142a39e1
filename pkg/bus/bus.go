package bus

import (
	"context"
	"fmt"

	"github.com/busline/msgbus/pkg/logger"
)

// Config collects the options the core recognizes to assemble a bus
// instance (spec.md §6): pump count, retry budget, the input queue and
// send-side topic publisher, plus handler/fault-handler registration.
// Fluent assembly/validation of Config is an external collaborator out of
// core scope; Config itself is the interface that collaborator targets.
type Config struct {
	// NumberOfPollingInstances is N, the count of independently-started
	// MessagePumps (spec.md §5). Ignored by NewSendOnlyBusFactory.
	NumberOfPollingInstances int

	// MessageRetryCount is the maxRetries threshold after which a message
	// is escalated to fault handlers and deleted.
	MessageRetryCount int

	// BatchSize bounds how many messages one QueueClient.Receive call may
	// return per poll.
	BatchSize int

	// InputQueue is the queue each pump polls and the queue PublishLocal
	// enqueues to. Required for NewStartableBus; optional (nil) for a
	// send-only bus with no local queue.
	InputQueue QueueClient

	// SendTopicPublisher is the TopicPublisher used for every non-local
	// Publish call.
	SendTopicPublisher TopicPublisher

	// Codec serializes/deserializes payloads; defaults to JSONCodec.
	Codec Codec

	registry *HandlerRegistry
	types    *TypeRegistry
}

// RegisterHandler registers ctor as a normal handler for sample's type on
// this Config's HandlerRegistry, creating the registry lazily on first
// use.
func (c *Config) RegisterHandler(sample any, ctor func() Handler) {
	c.ensureRegistry()
	c.registry.RegisterHandler(sample, ctor)
}

// RegisterFaultHandler registers ctor as a fault handler for sample's
// type.
func (c *Config) RegisterFaultHandler(sample any, ctor func() FaultHandler) {
	c.ensureRegistry()
	c.registry.RegisterFaultHandler(sample, ctor)
}

// RegisterTransportFaultHandler registers ctor to run on every faulted
// message, whether it failed to parse or exhausted its retries.
func (c *Config) RegisterTransportFaultHandler(ctor func() FaultHandler) {
	c.ensureRegistry()
	c.registry.RegisterTransportFaultHandler(ctor)
}

func (c *Config) ensureRegistry() {
	if c.types == nil {
		c.types = NewTypeRegistry()
	}
	if c.registry == nil {
		c.registry = NewHandlerRegistry(c.types)
	}
}

// Types returns the TypeRegistry this Config accumulates as handlers are
// registered, creating it lazily. Adapter constructors that parse the
// wire envelope themselves (every QueueClient in this repository) take
// this registry directly so they can resolve messageType names against
// exactly the types this bus has handlers for.
func (c *Config) Types() *TypeRegistry {
	c.ensureRegistry()
	return c.types
}

// EffectiveCodec returns c.Codec, defaulting to JSONCodec when unset.
// Adapter constructors take this so they serialize with the same codec
// the rest of this Config's bus uses.
func (c *Config) EffectiveCodec() Codec {
	if c.Codec != nil {
		return c.Codec
	}
	return NewJSONCodec()
}

// StartableBus is the handle returned by NewStartableBus: startReceiving,
// stopReceiving, createSendBus (spec.md §6).
type StartableBus struct {
	cfg   Config
	send  SendBus
	pumps []*MessagePump
}

// NewStartableBus validates cfg and assembles a StartableBus. Building the
// HandlerFactory and wiring it into N pumps happens here; no pump is
// started until StartReceiving is called.
func NewStartableBus(cfg Config) (*StartableBus, error) {
	if cfg.InputQueue == nil {
		return nil, ErrConfiguration("NewStartableBus requires a non-nil InputQueue", nil)
	}
	if cfg.SendTopicPublisher == nil {
		return nil, ErrConfiguration("NewStartableBus requires a non-nil SendTopicPublisher", nil)
	}
	if cfg.NumberOfPollingInstances <= 0 {
		return nil, ErrConfiguration("NumberOfPollingInstances must be positive", nil)
	}
	cfg.ensureRegistry()

	send := NewTransactionalBus(cfg.SendTopicPublisher, cfg.InputQueue)
	factory := cfg.registry.Build()
	dispatcher := NewDispatcher(cfg.registry, factory)

	pumps := make([]*MessagePump, cfg.NumberOfPollingInstances)
	for i := range pumps {
		pumps[i] = NewMessagePump(
			fmt.Sprintf("pump-%d", i),
			cfg.InputQueue, dispatcher, send,
			cfg.MessageRetryCount, cfg.BatchSize,
		)
	}

	return &StartableBus{cfg: cfg, send: send, pumps: pumps}, nil
}

// StartReceiving starts every pump's polling loop. Safe to call once; a
// second call is a no-op on pumps already running.
func (b *StartableBus) StartReceiving(ctx context.Context) {
	logger.L().InfoContext(ctx, "starting message pumps", "count", len(b.pumps))
	for _, pump := range b.pumps {
		pump.Start(ctx)
	}
}

// StopReceiving signals every pump to stop, awaits all of them via Join,
// then disposes each pump's queue resources (spec.md §5 cancellation
// semantics: stop then await all workers then dispose).
func (b *StartableBus) StopReceiving(ctx context.Context) {
	for _, pump := range b.pumps {
		pump.Stop()
	}
	for _, pump := range b.pumps {
		pump.Join()
	}
	for _, pump := range b.pumps {
		if err := pump.Dispose(ctx); err != nil {
			logger.L().ErrorContext(ctx, "failed to dispose pump", "error", err)
		}
	}
}

// CreateSendBus returns the SendBus instances created by this bus, so
// application code and handlers share the same TransactionalBus used
// internally by the pumps' dispatch.
func (b *StartableBus) CreateSendBus() SendBus {
	return b.send
}

// SendBusFactory is returned by NewSendOnlyBusFactory: a producer-only
// assembly with no InputQueue, its own PublishLocal therefore always
// erroring and its publish attributes never carrying a sender.
type SendBusFactory struct {
	send SendBus
}

// NewSendOnlyBusFactory assembles a send-only bus with no local queue.
func NewSendOnlyBusFactory(cfg Config) (*SendBusFactory, error) {
	if cfg.SendTopicPublisher == nil {
		return nil, ErrConfiguration("NewSendOnlyBusFactory requires a non-nil SendTopicPublisher", nil)
	}
	send := NewTransactionalBus(cfg.SendTopicPublisher, nil)
	return &SendBusFactory{send: send}, nil
}

// CreateSendBus returns a SendBus instance from this factory.
func (f *SendBusFactory) CreateSendBus() SendBus {
	return f.send
}
