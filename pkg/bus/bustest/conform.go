// Package bustest provides shared conformance tests for bus.TopicPublisher
// and bus.QueueClient implementations. The memory adapter's tests run them;
// the network adapters in pkg/bus/adapters have no tests that call them.
package bustest

import (
	"context"
	"testing"
	"time"

	"github.com/busline/msgbus/pkg/bus"
	"github.com/stretchr/testify/require"
)

// ConformMessage is the sample payload type every conformance test
// publishes and receives.
type ConformMessage struct {
	Name string
}

// ConformTopicPublisher exercises RegisterTypes + Publish against a fresh
// publisher/queue pairing wired to the same topic: publishing a
// ConformMessage must eventually be observable on queue.
func ConformTopicPublisher(t *testing.T, publisher bus.TopicPublisher, queue bus.QueueClient, types *bus.TypeRegistry) {
	t.Helper()
	ctx := context.Background()

	types.Register(ConformMessage{})
	require.NoError(t, publisher.RegisterTypes(ctx, ConformMessage{}))
	require.NoError(t, queue.Subscribe(ctx, ConformMessage{}))

	require.NoError(t, publisher.Publish(ctx, ConformMessage{Name: "conform"}, map[string]string{}))

	msg := receiveOne(t, queue)
	require.True(t, msg.ParsingSucceeded, "parse error: %v", msg.ParseError)
	require.Equal(t, ConformMessage{Name: "conform"}, msg.Message)
	require.NotEmpty(t, msg.ReceiptHandle)
	require.GreaterOrEqual(t, msg.RetryCount, 1)

	require.NoError(t, queue.Delete(ctx, msg.ReceiptHandle))
}

// ConformQueueClient exercises Enqueue + Receive + Delete directly against
// one QueueClient, bypassing any topic.
func ConformQueueClient(t *testing.T, queue bus.QueueClient, types *bus.TypeRegistry) {
	t.Helper()
	ctx := context.Background()

	types.Register(ConformMessage{})
	require.NoError(t, queue.Enqueue(ctx, ConformMessage{Name: "local"}, map[string]string{}))

	msg := receiveOne(t, queue)
	require.True(t, msg.ParsingSucceeded, "parse error: %v", msg.ParseError)
	require.Equal(t, ConformMessage{Name: "local"}, msg.Message)

	require.NoError(t, queue.Delete(ctx, msg.ReceiptHandle))
	require.NotEmpty(t, queue.Address())
}

func receiveOne(t *testing.T, queue bus.QueueClient) *bus.TransportMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	messages, err := queue.Receive(ctx, 1)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	return messages[0]
}
