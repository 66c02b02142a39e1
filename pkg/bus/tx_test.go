package bus

import (
	"context"
	"reflect"
	"testing"
)

type txTestMessage struct {
	Name string
}

// fakeSendBus records the order publishImmediate/publishLocalImmediate are
// invoked in, standing in for TransactionalBus so Complete's flush order can
// be asserted without a real transport.
type fakeSendBus struct {
	published      []any
	publishedLocal []any
}

func (b *fakeSendBus) Publish(ctx context.Context, value any) error {
	if tx, active := txFromContext(ctx); active {
		tx.Enlist(&PendingOutbound{Mode: PendingPublish, Build: func() (any, error) { return value, nil }})
		return nil
	}
	return b.publishImmediate(ctx, value)
}

func (b *fakeSendBus) PublishLocal(ctx context.Context, value any) error {
	if tx, active := txFromContext(ctx); active {
		tx.Enlist(&PendingOutbound{Mode: PendingSendLocal, Build: func() (any, error) { return value, nil }})
		return nil
	}
	return b.publishLocalImmediate(ctx, value)
}

func (b *fakeSendBus) PublishBuilder(ctx context.Context, declaredType reflect.Type, build func() (any, error)) error {
	if tx, active := txFromContext(ctx); active {
		tx.Enlist(&PendingOutbound{Mode: PendingPublish, DeclaredType: declaredType, Build: build})
		return nil
	}
	value, err := build()
	if err != nil {
		return err
	}
	return b.publishImmediate(ctx, value)
}

func (b *fakeSendBus) PublishLocalBuilder(ctx context.Context, declaredType reflect.Type, build func() (any, error)) error {
	if tx, active := txFromContext(ctx); active {
		tx.Enlist(&PendingOutbound{Mode: PendingSendLocal, DeclaredType: declaredType, Build: build})
		return nil
	}
	value, err := build()
	if err != nil {
		return err
	}
	return b.publishLocalImmediate(ctx, value)
}

func (b *fakeSendBus) publishImmediate(ctx context.Context, value any) error {
	b.published = append(b.published, value)
	return nil
}

func (b *fakeSendBus) publishLocalImmediate(ctx context.Context, value any) error {
	b.publishedLocal = append(b.publishedLocal, value)
	return nil
}

func TestTxContextCompleteFlushesInEnlistOrder(t *testing.T) {
	tx := NewTxContext()
	sb := &fakeSendBus{}
	ctx := withTx(context.Background(), tx)

	if err := sb.Publish(ctx, txTestMessage{Name: "first"}); err != nil {
		t.Fatalf("Publish first: %v", err)
	}
	if err := sb.PublishLocal(ctx, txTestMessage{Name: "local"}); err != nil {
		t.Fatalf("PublishLocal: %v", err)
	}
	if err := sb.Publish(ctx, txTestMessage{Name: "second"}); err != nil {
		t.Fatalf("Publish second: %v", err)
	}

	if len(sb.published) != 0 || len(sb.publishedLocal) != 0 {
		t.Fatalf("expected nothing flushed before Complete, got published=%v local=%v", sb.published, sb.publishedLocal)
	}

	if err := tx.Complete(ctx, sb); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if len(sb.published) != 2 || sb.published[0] != (txTestMessage{Name: "first"}) || sb.published[1] != (txTestMessage{Name: "second"}) {
		t.Fatalf("unexpected publish order: %v", sb.published)
	}
	if len(sb.publishedLocal) != 1 || sb.publishedLocal[0] != (txTestMessage{Name: "local"}) {
		t.Fatalf("unexpected local publish: %v", sb.publishedLocal)
	}
}

func TestTxContextDiscardNeverFlushes(t *testing.T) {
	tx := NewTxContext()
	sb := &fakeSendBus{}
	ctx := withTx(context.Background(), tx)

	if err := sb.Publish(ctx, txTestMessage{Name: "dropped"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	tx.Discard()

	if err := tx.Complete(context.Background(), sb); err != nil {
		t.Fatalf("Complete after discard: %v", err)
	}
	if len(sb.published) != 0 {
		t.Fatalf("expected no publishes after discard, got %v", sb.published)
	}
}

// TestPublishBuilderEnlistedBuildDeferredUntilCommit asserts an enlisted
// PublishBuilder closure is not invoked at enlist time, runs exactly once
// when Complete flushes it, and never runs at all if the transaction is
// discarded instead.
func TestPublishBuilderEnlistedBuildDeferredUntilCommit(t *testing.T) {
	tx := NewTxContext()
	sb := &fakeSendBus{}
	ctx := withTx(context.Background(), tx)

	builds := 0
	build := func() (any, error) {
		builds++
		return txTestMessage{Name: "deferred"}, nil
	}
	if err := sb.PublishBuilder(ctx, reflect.TypeOf(txTestMessage{}), build); err != nil {
		t.Fatalf("PublishBuilder: %v", err)
	}
	if builds != 0 {
		t.Fatalf("expected enlist not to invoke the build closure, got %d calls", builds)
	}

	if err := tx.Complete(ctx, sb); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if builds != 1 {
		t.Fatalf("expected Complete to invoke the build closure exactly once, got %d calls", builds)
	}
	if len(sb.published) != 1 || sb.published[0] != (txTestMessage{Name: "deferred"}) {
		t.Fatalf("unexpected published value: %v", sb.published)
	}
}

func TestPublishBuilderDiscardedNeverInvokesBuild(t *testing.T) {
	tx := NewTxContext()
	sb := &fakeSendBus{}
	ctx := withTx(context.Background(), tx)

	builds := 0
	if err := sb.PublishBuilder(ctx, reflect.TypeOf(txTestMessage{}), func() (any, error) {
		builds++
		return txTestMessage{Name: "never built"}, nil
	}); err != nil {
		t.Fatalf("PublishBuilder: %v", err)
	}
	tx.Discard()

	if err := tx.Complete(context.Background(), sb); err != nil {
		t.Fatalf("Complete after discard: %v", err)
	}
	if builds != 0 {
		t.Fatalf("expected the enlisted build closure never to run once its transaction was discarded, got %d calls", builds)
	}
}

func TestTxContextCompleteStopsAtFirstError(t *testing.T) {
	tx := NewTxContext()
	sb := &fakeSendBus{}
	ctx := withTx(context.Background(), tx)

	tx.Enlist(&PendingOutbound{Mode: PendingPublish, Build: func() (any, error) { return nil, ErrPublish("boom", nil) }})
	tx.Enlist(&PendingOutbound{Mode: PendingPublish, Build: func() (any, error) { return txTestMessage{Name: "never"}, nil }})

	if err := tx.Complete(ctx, sb); err == nil {
		t.Fatalf("expected Complete to surface the build error")
	}
	if len(sb.published) != 0 {
		t.Fatalf("expected no publishes to flush past the failing entry, got %v", sb.published)
	}
}
