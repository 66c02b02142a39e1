package bus

import "context"

// txKey is the private context key under which an active *TxContext is
// stored, replacing the original design's language-level ambient
// transaction (see spec.md §9 Design Notes).
type txKey struct{}

// TxContext is an explicit ambient-transaction scope: outbound sends made
// while a TxContext is active on the calling context enlist into its
// buffer instead of being dispatched immediately. The Dispatcher opens one
// around each message's handler set with Required semantics (spec.md §5) —
// handler-internal sends enlist on the same scope and therefore flush
// atomically with the dispatch outcome.
type TxContext struct {
	pending []*PendingOutbound
}

// NewTxContext returns a fresh, empty transaction scope.
func NewTxContext() *TxContext {
	return &TxContext{}
}

// withTx returns a derived context carrying tx as the active ambient
// transaction.
func withTx(ctx context.Context, tx *TxContext) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// txFromContext returns the active TxContext, if any.
func txFromContext(ctx context.Context) (*TxContext, bool) {
	tx, ok := ctx.Value(txKey{}).(*TxContext)
	return tx, ok
}

// Enlist appends a pending outbound action to the transaction's buffer, in
// insertion order. The builder closure inside out is not invoked here;
// Complete invokes each in order, Discard never invokes any of them.
func (tx *TxContext) Enlist(out *PendingOutbound) {
	tx.pending = append(tx.pending, out)
}

// Complete walks the buffer in insertion order, invoking each entry's
// Build closure and then flush for the resulting payload via the given
// SendBus. It stops and returns the first error encountered; outbound
// entries after the failing one are not flushed.
func (tx *TxContext) Complete(ctx context.Context, bus SendBus) error {
	pending := tx.pending
	tx.pending = nil
	for _, out := range pending {
		payload, err := out.Build()
		if err != nil {
			return ErrPublish("failed to build enlisted payload", err)
		}
		switch out.Mode {
		case PendingPublish:
			if err := bus.publishImmediate(ctx, payload); err != nil {
				return err
			}
		case PendingSendLocal:
			if err := bus.publishLocalImmediate(ctx, payload); err != nil {
				return err
			}
		}
	}
	return nil
}

// Discard drops the buffer unread: none of the builder closures are ever
// invoked and no serialization occurs.
func (tx *TxContext) Discard() {
	tx.pending = nil
}
