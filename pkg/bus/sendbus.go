package bus

import (
	"context"
	"reflect"

	"github.com/busline/msgbus/pkg/logger"
)

// SendBus is the client-facing publish / publish-local API (spec.md
// §4.8), consulted by both application code and handlers running inside a
// dispatch. publishImmediate/publishLocalImmediate are the unbuffered
// paths a TxContext invokes on commit; Publish/PublishLocal are the public
// entry points that decide, per call, whether to go through the ambient
// transaction or straight to the immediate path.
type SendBus interface {
	// Publish serializes value and sends it to the topic derived from
	// value's concrete type, or — if an ambient transaction is active on
	// ctx — enlists it to flush on commit.
	Publish(ctx context.Context, value any) error

	// PublishLocal enqueues value directly on the owning queue, bypassing
	// the topic, subject to the same ambient-transaction buffering as
	// Publish.
	PublishLocal(ctx context.Context, value any) error

	// PublishBuilder is Publish's deferred-construction form (spec.md
	// §4.8/§2). Outside a transaction build runs immediately,
	// synchronously, to produce the published value. Inside one, build is
	// not invoked here: it is stored unevaluated on the TxContext and only invoked by
	// Complete on commit — never on Discard — so an enlisted payload that
	// is expensive or order-dependent to construct is built at most once,
	// at the moment it is actually needed. declaredType records the
	// payload's static type for callers that need it before build runs.
	PublishBuilder(ctx context.Context, declaredType reflect.Type, build func() (any, error)) error

	// PublishLocalBuilder is PublishLocal's deferred-construction form,
	// under the same rules as PublishBuilder.
	PublishLocalBuilder(ctx context.Context, declaredType reflect.Type, build func() (any, error)) error

	publishImmediate(ctx context.Context, value any) error
	publishLocalImmediate(ctx context.Context, value any) error
}

// TransactionalBus is the concrete SendBus: it owns the TopicPublisher and
// optionally a local QueueClient (for PublishLocal and for the sender
// attribute per spec.md §4.8's attribute rules). Serialization happens
// inside whichever adapter backs TopicPublisher/QueueClient, since each
// adapter builds its own wire envelope via BuildEnvelope.
type TransactionalBus struct {
	publisher TopicPublisher
	queue     QueueClient // nil if this bus has no owning queue
}

// NewTransactionalBus builds a SendBus over publisher. queue may be nil for
// a send-only bus with no local queue (spec.md §6 createSendOnlyBusFactory);
// when nil, PublishLocal returns an error and the sender attribute is
// omitted from every publish.
func NewTransactionalBus(publisher TopicPublisher, queue QueueClient) *TransactionalBus {
	return &TransactionalBus{publisher: publisher, queue: queue}
}

// Publish implements SendBus as the value-taking convenience form of
// PublishBuilder: the payload is already constructed, so its builder
// closure is trivial.
func (b *TransactionalBus) Publish(ctx context.Context, value any) error {
	return b.PublishBuilder(ctx, reflect.TypeOf(value), func() (any, error) { return value, nil })
}

// PublishLocal implements SendBus as the value-taking convenience form of
// PublishLocalBuilder.
func (b *TransactionalBus) PublishLocal(ctx context.Context, value any) error {
	return b.PublishLocalBuilder(ctx, reflect.TypeOf(value), func() (any, error) { return value, nil })
}

// PublishBuilder implements SendBus. Outside a transaction, build runs
// immediately and its result is published synchronously. Inside one, build
// is enlisted unevaluated and only runs from TxContext.Complete on commit.
func (b *TransactionalBus) PublishBuilder(ctx context.Context, declaredType reflect.Type, build func() (any, error)) error {
	if tx, active := txFromContext(ctx); active {
		tx.Enlist(&PendingOutbound{
			Mode:         PendingPublish,
			DeclaredType: declaredType,
			Build:        build,
		})
		return nil
	}
	value, err := build()
	if err != nil {
		return ErrPublish("failed to build message for immediate publish", err)
	}
	return b.publishImmediate(ctx, value)
}

// PublishLocalBuilder implements SendBus, under the same immediate/enlist
// rule as PublishBuilder.
func (b *TransactionalBus) PublishLocalBuilder(ctx context.Context, declaredType reflect.Type, build func() (any, error)) error {
	if b.queue == nil {
		return ErrConfiguration("publishLocal requires a local queue", nil)
	}
	if tx, active := txFromContext(ctx); active {
		tx.Enlist(&PendingOutbound{
			Mode:         PendingSendLocal,
			DeclaredType: declaredType,
			Build:        build,
		})
		return nil
	}
	value, err := build()
	if err != nil {
		return ErrPublish("failed to build message for immediate local publish", err)
	}
	return b.publishLocalImmediate(ctx, value)
}

// publishImmediate hands value to TopicPublisher.Publish synchronously (the
// adapter serializes it), attaching sender when a local queue is known (spec.md
// §4.8 attribute rules: sender is populated only when this bus owns a
// local queue, omitted entirely otherwise).
func (b *TransactionalBus) publishImmediate(ctx context.Context, value any) error {
	typeName := fullyQualifiedTypeName(reflect.TypeOf(value))
	attrs := map[string]string{}
	if b.queue != nil {
		attrs[AttrSender] = b.queue.Address()
	}

	logger.L().DebugContext(ctx, "publishing message", "messageType", typeName)
	if err := b.publisher.Publish(ctx, value, attrs); err != nil {
		return ErrPublish("failed to publish message", err)
	}
	return nil
}

// publishLocalImmediate enqueues value directly on the owning queue,
// bypassing the topic entirely.
func (b *TransactionalBus) publishLocalImmediate(ctx context.Context, value any) error {
	if b.queue == nil {
		return ErrConfiguration("publishLocal requires a local queue", nil)
	}

	typeName := fullyQualifiedTypeName(reflect.TypeOf(value))
	attrs := map[string]string{AttrSender: b.queue.Address()}

	logger.L().DebugContext(ctx, "publishing local message", "messageType", typeName, "queue", b.queue.Address())
	if err := b.queue.Enqueue(ctx, value, attrs); err != nil {
		return ErrPublish("failed to enqueue local message", err)
	}
	return nil
}
