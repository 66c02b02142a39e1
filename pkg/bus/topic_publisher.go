package bus

import (
	"context"
	"reflect"
	"sync"
)

// TopicPublisher fans a typed message out to every subscriber of the topic
// derived from the message's concrete type, the way a cloud notification
// service (e.g. SNS) fans a single publish out to every subscribed queue.
type TopicPublisher interface {
	// RegisterTypes creates or discovers, then caches, the provider topic
	// for each sample's type. Must be called before Publish is used for
	// that type; adapters are free to make this a no-op if their provider
	// needs no upfront declaration.
	RegisterTypes(ctx context.Context, samples ...any) error

	// Publish serializes message with the publisher's Codec and sends it
	// to the topic registered for message's concrete type, carrying
	// attributes alongside the core-added messageType and fromSns=true
	// markers. Returns ErrUnknownTopic if RegisterTypes was never called
	// for that type.
	Publish(ctx context.Context, message any, attributes map[string]string) error

	// Close releases any provider-side resources held by the publisher.
	Close(ctx context.Context) error
}

// TopicCache is a concurrent-safe cache from topic name to provider-specific
// topic handle (an SNS topic ARN string, a Pub/Sub or sarama topic name,
// …), shared by every TopicPublisher adapter so RegisterTypes and
// Publish never race on the same underlying map.
type TopicCache struct {
	entries sync.Map // map[string]any
}

// NewTopicCache returns an empty cache.
func NewTopicCache() *TopicCache {
	return &TopicCache{}
}

// Get returns the cached handle for name, if any.
func (c *TopicCache) Get(name string) (any, bool) {
	return c.entries.Load(name)
}

// Set caches handle under name, overwriting any previous entry.
func (c *TopicCache) Set(name string, handle any) {
	c.entries.Store(name, handle)
}

// GetOrCreate returns the cached handle for name, calling create to
// populate the cache on a miss. create is never called concurrently for
// the same name under normal use (adapters call this from RegisterTypes,
// which callers are expected to run once at startup), but LoadOrStore is
// used regardless so a racing call never overwrites an already-cached
// handle with a second, discarded one.
func (c *TopicCache) GetOrCreate(name string, create func() (any, error)) (any, error) {
	if existing, ok := c.entries.Load(name); ok {
		return existing, nil
	}
	handle, err := create()
	if err != nil {
		return nil, err
	}
	actual, _ := c.entries.LoadOrStore(name, handle)
	return actual, nil
}

// TopicNameFor returns the wire topic name derived from sample's concrete
// type, for adapters that want the shared naming.go derivation without
// reimplementing it.
func TopicNameFor(sample any) string {
	t := reflect.TypeOf(sample)
	return topicName(t)
}
