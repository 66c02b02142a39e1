package bus

import (
	"context"

	"github.com/busline/msgbus/pkg/resilience"
)

// resilientQueueClient wraps a QueueClient so its Receive call is retried
// a small, bounded number of times against transient transport errors
// instead of surfacing immediately (spec.md §7 TransientReceiveError:
// "Logged; pump continues after a brief backoff" — implemented here as a
// bounded resilience.Retry rather than the pump's own unbounded loop).
// Delete and Enqueue are passed through unwrapped: a failed delete is
// already handled by the caller re-attempting on the next redelivery, and
// enqueue failures are PublishErrors surfaced synchronously per spec.md §7.
type resilientQueueClient struct {
	QueueClient
	retry resilience.RetryConfig
}

// NewResilientQueueClient wraps client with a small bounded retry around
// Receive, using retry's backoff policy.
func NewResilientQueueClient(client QueueClient, retry resilience.RetryConfig) QueueClient {
	return &resilientQueueClient{QueueClient: client, retry: retry}
}

func (r *resilientQueueClient) Receive(ctx context.Context, maxMessages int) ([]*TransportMessage, error) {
	var result []*TransportMessage
	err := resilience.Retry(ctx, r.retry, func(ctx context.Context) error {
		messages, err := r.QueueClient.Receive(ctx, maxMessages)
		if err != nil {
			return err
		}
		result = messages
		return nil
	})
	if err != nil {
		return nil, ErrTransientReceive("queue receive failed after retries", err)
	}
	return result, nil
}

// DefaultReceiveRetryConfig returns a small, bounded retry policy for
// NewResilientQueueClient. Nothing in the bus applies it on its own: a
// queue is wrapped only when the caller passes it through
// NewResilientQueueClient.
func DefaultReceiveRetryConfig() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = 3
	return cfg
}
