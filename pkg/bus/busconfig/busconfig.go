// Package busconfig is the env-loadable configuration builder that sits
// outside pkg/bus's core (spec.md §1 keeps configuration builders external
// collaborators) but supplies the concrete env/.env shape a process wires a
// bus from.
package busconfig

import (
	"github.com/busline/msgbus/pkg/config"
)

// Driver names the adapter pairing a process assembles; this package only
// loads the setting and does not assemble the adapters itself.
type Driver string

const (
	DriverMemory    Driver = "memory"
	DriverSNSSQS    Driver = "snssqs"
	DriverKafka     Driver = "kafka"
	DriverRabbitMQ  Driver = "rabbitmq"
	DriverGCPPubSub Driver = "gcppubsub"
)

// Settings is the env-sourced shape read via pkg/config.Load before a
// process picks the matching adapter pairing and assembles a bus.Config.
// Fields not relevant to the selected Driver are left zero-valued.
type Settings struct {
	// Driver selects the adapter pairing. Supported values: memory,
	// snssqs, kafka, rabbitmq, gcppubsub.
	Driver Driver `env:"BUS_DRIVER" env-default:"memory"`

	// NumberOfPollingInstances is the count of independently-started
	// MessagePumps a StartableBus should run.
	NumberOfPollingInstances int `env:"BUS_POLLING_INSTANCES" env-default:"1"`

	// MessageRetryCount is the redelivery budget before a message is
	// escalated to fault handlers.
	MessageRetryCount int `env:"BUS_MESSAGE_RETRY_COUNT" env-default:"5"`

	// BatchSize bounds messages returned per QueueClient.Receive call.
	BatchSize int `env:"BUS_BATCH_SIZE" env-default:"10"`

	// AWSRegion, SNSTopicPrefix, SQSQueueName configure the snssqs driver.
	AWSRegion      string `env:"BUS_AWS_REGION"`
	SNSTopicPrefix string `env:"BUS_SNS_TOPIC_PREFIX"`
	SQSQueueName   string `env:"BUS_SQS_QUEUE_NAME"`

	// KafkaBrokers, KafkaConsumerGroup, KafkaQueueTopic configure the
	// kafka driver. KafkaBrokers is comma-separated by the caller before
	// being split; config.Load leaves it a single env string.
	KafkaBrokers       string `env:"BUS_KAFKA_BROKERS"`
	KafkaConsumerGroup string `env:"BUS_KAFKA_CONSUMER_GROUP"`
	KafkaQueueTopic    string `env:"BUS_KAFKA_QUEUE_TOPIC"`

	// RabbitMQURL, RabbitMQQueueName configure the rabbitmq driver.
	RabbitMQURL       string `env:"BUS_RABBITMQ_URL"`
	RabbitMQQueueName string `env:"BUS_RABBITMQ_QUEUE_NAME"`

	// GCPProjectID, GCPSubscriptionID configure the gcppubsub driver.
	GCPProjectID      string `env:"BUS_GCP_PROJECT_ID"`
	GCPSubscriptionID string `env:"BUS_GCP_SUBSCRIPTION_ID"`
}

// Load reads Settings from .env/environment variables, validating required
// fields via the same cleanenv+validator chain pkg/config uses everywhere
// else in this codebase.
func Load() (Settings, error) {
	var s Settings
	if err := config.Load(&s); err != nil {
		return Settings{}, err
	}
	return s, nil
}
