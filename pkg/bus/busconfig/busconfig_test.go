package busconfig_test

import (
	"testing"

	"github.com/busline/msgbus/pkg/bus/busconfig"
)

func TestLoadAppliesDefaultsWithNoEnvSet(t *testing.T) {
	s, err := busconfig.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Driver != busconfig.DriverMemory {
		t.Fatalf("expected default driver %q, got %q", busconfig.DriverMemory, s.Driver)
	}
	if s.NumberOfPollingInstances != 1 {
		t.Fatalf("expected default polling instances 1, got %d", s.NumberOfPollingInstances)
	}
	if s.MessageRetryCount != 5 {
		t.Fatalf("expected default retry count 5, got %d", s.MessageRetryCount)
	}
	if s.BatchSize != 10 {
		t.Fatalf("expected default batch size 10, got %d", s.BatchSize)
	}
}

func TestLoadReadsDriverSpecificSettingsFromEnv(t *testing.T) {
	t.Setenv("BUS_DRIVER", string(busconfig.DriverKafka))
	t.Setenv("BUS_KAFKA_BROKERS", "broker-1:9092,broker-2:9092")
	t.Setenv("BUS_KAFKA_CONSUMER_GROUP", "orders-service")
	t.Setenv("BUS_KAFKA_QUEUE_TOPIC", "orders")

	s, err := busconfig.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Driver != busconfig.DriverKafka {
		t.Fatalf("expected driver %q, got %q", busconfig.DriverKafka, s.Driver)
	}
	if s.KafkaBrokers != "broker-1:9092,broker-2:9092" {
		t.Fatalf("unexpected KafkaBrokers: %q", s.KafkaBrokers)
	}
	if s.KafkaConsumerGroup != "orders-service" {
		t.Fatalf("unexpected KafkaConsumerGroup: %q", s.KafkaConsumerGroup)
	}
	if s.KafkaQueueTopic != "orders" {
		t.Fatalf("unexpected KafkaQueueTopic: %q", s.KafkaQueueTopic)
	}
}
