package kafka

import (
	"errors"
	"strconv"
	"strings"

	"packtrack/internal/config"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// ErrNoBrokers is returned when KAFKA_BROKERS is unset
var ErrNoBrokers = errors.New("KAFKA_BROKERS environment variable is required")

// Config holds Kafka configuration
type Config struct {
	Brokers           string
	EmailEventsTopic  string
	EmailDLQTopic     string
	ConsumerGroup     string
	MaxRetries        int
	EnableIdempotence bool
	Acks              string
}

// LoadConfig loads Kafka configuration from environment variables
func LoadConfig() (*Config, error) {
	brokers := strings.TrimSpace(config.GetEnvOrDefault("KAFKA_BROKERS", ""))
	if brokers == "" {
		return nil, ErrNoBrokers
	}

	maxRetries, err := strconv.Atoi(config.GetEnvOrDefault("KAFKA_MAX_RETRIES", "3"))
	if err != nil || maxRetries < 1 {
		maxRetries = 3
	}

	return &Config{
		Brokers:           brokers,
		EmailEventsTopic:  config.GetEnvOrDefault("KAFKA_TOPIC_EMAIL_EVENTS", "email-events"),
		EmailDLQTopic:     config.GetEnvOrDefault("KAFKA_TOPIC_EMAIL_DLQ", "email-events-dlq"),
		ConsumerGroup:     config.GetEnvOrDefault("KAFKA_CONSUMER_GROUP", "packtrack-mailer"),
		MaxRetries:        maxRetries,
		EnableIdempotence: true,
		Acks:              "all",
	}, nil
}

// ProducerConfigMap returns librdkafka settings for an idempotent producer
func (c *Config) ProducerConfigMap() *kafka.ConfigMap {
	return &kafka.ConfigMap{
		"bootstrap.servers":                     c.Brokers,
		"enable.idempotence":                    c.EnableIdempotence,
		"acks":                                  c.Acks,
		"max.in.flight.requests.per.connection": 5,
	}
}

// GetBrokersList returns brokers as a slice
func (c *Config) GetBrokersList() []string {
	var out []string
	for _, b := range strings.Split(c.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
