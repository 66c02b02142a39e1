package bus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/busline/msgbus/pkg/logger"
)

// Dispatcher processes one TransportMessage through its registered handler
// set under a transactional scope (spec.md §4.5).
type Dispatcher struct {
	registry *HandlerRegistry
	factory  *HandlerFactory
}

// NewDispatcher builds a dispatcher over the given immutable registry and
// factory, shared read-only across every MessagePump.
func NewDispatcher(registry *HandlerRegistry, factory *HandlerFactory) *Dispatcher {
	return &Dispatcher{registry: registry, factory: factory}
}

// Dispatch runs every handler registered for msg.MessageType, opening a
// TxContext with Required semantics around the whole handler set so that
// outbound sends made from inside a handler enlist on, and flush with, the
// same transaction. The transaction is always committed, even when a
// handler returned an error — see spec.md §9 Open Questions for why this
// spec preserves that observed, rather than corrected, behavior.
func (d *Dispatcher) Dispatch(ctx context.Context, bus SendBus, msg *TransportMessage) MessageProcessingResult {
	typeName := msg.MessageTypeName
	if !d.registry.HasHandlers(typeName) {
		return MessageProcessingResult{Success: false, Error: ErrNoHandler(typeName)}
	}

	tx := NewTxContext()
	txCtx := withTx(ctx, tx)

	var lastErr error
	for _, handler := range d.factory.NewHandlers(typeName) {
		scope := DispatchScope{
			Context: txCtx,
			Send:    bus,
			Logger:  logger.L().With(slog.String("handlerType", fmt.Sprintf("%T", handler))),
		}
		if err := handler.Handle(scope, msg.Message); err != nil {
			lastErr = ErrHandler("handler failed for "+typeName, err)
			scope.Logger.Error("handler failed", slog.Any("error", err))
		}
	}

	if commitErr := tx.Complete(txCtx, bus); commitErr != nil && lastErr == nil {
		lastErr = commitErr
	}

	return MessageProcessingResult{Success: lastErr == nil, Error: lastErr}
}

// DispatchFault invokes every fault handler registered for the raw
// transport message, then — if the message parsed successfully — every
// fault handler registered for its decoded concrete type. Each fault
// handler's own error is logged and swallowed so one misbehaving fault
// handler never prevents the others, or the pump's delete, from running.
func (d *Dispatcher) DispatchFault(ctx context.Context, bus SendBus, msg *TransportMessage, cause error) {
	scope := DispatchScope{Context: ctx, Send: bus, Logger: logger.L()}

	for _, fh := range d.factory.NewFaultHandlers(transportFaultKey) {
		if err := fh.HandleFault(scope, msg, cause); err != nil {
			scope.Logger.Error("transport fault handler failed", slog.Any("error", err))
		}
	}

	if msg.ParsingSucceeded {
		for _, fh := range d.factory.NewFaultHandlers(msg.MessageTypeName) {
			if err := fh.HandleFault(scope, msg.Message, cause); err != nil {
				scope.Logger.Error("fault handler failed", slog.String("messageType", msg.MessageTypeName), slog.Any("error", err))
			}
		}
	}
}
