package email

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// DefaultMaxRetries is the number of send attempts before a message goes to the DLQ
const DefaultMaxRetries = 3

// DeadLetterPublisher publishes undeliverable events
type DeadLetterPublisher interface {
	Publish(topic, key string, event any) error
}

// DeadLetter wraps an event that failed every send attempt
type DeadLetter struct {
	OriginalEvent Event     `json:"original_event"`
	Error         string    `json:"error"`
	FailedAt      time.Time `json:"failed_at"`
	ConsumerGroup string    `json:"consumer_group"`
}

// Processor turns raw email events into sends. It is transport agnostic so
// the Kafka loop stays thin.
type Processor struct {
	sender        Sender
	store         *IdempotencyStore
	dlq           DeadLetterPublisher
	dlqTopic      string
	consumerGroup string
	maxRetries    int
	backoff       func(attempt int) time.Duration
	logger        *slog.Logger
}

// NewProcessor creates a processor. dlq may be nil, in which case failed
// events are only logged.
func NewProcessor(sender Sender, store *IdempotencyStore, dlq DeadLetterPublisher, cfg *ConsumerConfig, logger *slog.Logger) *Processor {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Processor{
		sender:        sender,
		store:         store,
		dlq:           dlq,
		dlqTopic:      cfg.DLQTopic,
		consumerGroup: cfg.ConsumerGroup,
		maxRetries:    maxRetries,
		backoff:       func(attempt int) time.Duration { return time.Duration(attempt) * time.Second },
		logger:        logger,
	}
}

// Process handles one message value and reports whether its offset may be
// committed. False means the message should be redelivered.
func (p *Processor) Process(ctx context.Context, value []byte) bool {
	var event Event
	if err := json.Unmarshal(value, &event); err != nil {
		p.logger.Error("Failed to parse email event", "error", err, "raw_value", string(value))
		return true
	}

	if event.MessageID == "" {
		p.logger.Error("Email event missing message_id", "type", event.EventType)
		return true
	}

	processed, err := p.store.IsProcessed(ctx, event.MessageID)
	if err != nil {
		p.logger.Error("Failed to check idempotency", "messageID", event.MessageID, "error", err)
		return false
	}
	if processed {
		p.logger.Warn("Duplicate email event detected, skipping", "messageID", event.MessageID, "type", event.EventType)
		return true
	}

	if err := p.sendWithRetry(ctx, event); err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("Failed to process email event after retries", "messageID", event.MessageID, "error", err)
		p.sendToDLQ(event, err)
		return true
	}

	if _, err := p.store.MarkAsProcessed(ctx, event); err != nil {
		// The email went out; a redelivery would duplicate it, so commit anyway.
		p.logger.Error("Failed to mark as processed", "messageID", event.MessageID, "error", err)
	}

	p.logger.Info("Email event processed", "messageID", event.MessageID, "type", event.EventType)
	return true
}

func (p *Processor) sendWithRetry(ctx context.Context, event Event) error {
	var lastErr error

	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		err := p.sender.SendEvent(event)
		if err == nil {
			if attempt > 1 {
				p.logger.Info("Email sent after retry", "messageID", event.MessageID, "attempt", attempt)
			}
			return nil
		}
		if errors.Is(err, ErrUnsupportedEvent) {
			return err
		}

		lastErr = err
		p.logger.Warn("Failed to send email, will retry",
			"messageID", event.MessageID,
			"attempt", attempt,
			"maxRetries", p.maxRetries,
			"error", err)

		if attempt < p.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.backoff(attempt)):
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (p *Processor) sendToDLQ(event Event, processingErr error) {
	if p.dlq == nil || p.dlqTopic == "" {
		return
	}

	letter := DeadLetter{
		OriginalEvent: event,
		Error:         processingErr.Error(),
		FailedAt:      time.Now().UTC(),
		ConsumerGroup: p.consumerGroup,
	}
	if err := p.dlq.Publish(p.dlqTopic, event.MessageID, letter); err != nil {
		p.logger.Error("Failed to send to DLQ", "messageID", event.MessageID, "error", err)
		return
	}

	p.logger.Warn("Email event sent to DLQ", "messageID", event.MessageID, "dlq_topic", p.dlqTopic)
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Brokers       string
	Topic         string
	DLQTopic      string
	ConsumerGroup string
	MaxRetries    int
}

// Consumer reads email events from Kafka and feeds them to a Processor
type Consumer struct {
	consumer  *kafka.Consumer
	processor *Processor
	config    *ConsumerConfig
	logger    *slog.Logger
}

// NewConsumer creates a Kafka consumer with manual offset commits
func NewConsumer(cfg *ConsumerConfig, processor *Processor, logger *slog.Logger) (*Consumer, error) {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Brokers,
		"group.id":           cfg.ConsumerGroup,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	logger.Info("Kafka consumer initialized",
		"brokers", cfg.Brokers,
		"topic", cfg.Topic,
		"group", cfg.ConsumerGroup)

	return &Consumer{consumer: c, processor: processor, config: cfg, logger: logger}, nil
}

// Start consumes until ctx is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.consumer.Subscribe(c.config.Topic, nil); err != nil {
		return fmt.Errorf("failed to subscribe to topic: %w", err)
	}

	c.logger.Info("Starting to consume messages", "topic", c.config.Topic)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Consumer shutting down...")
			return nil
		default:
		}

		msg, err := c.consumer.ReadMessage(time.Second)
		if err != nil {
			var kerr kafka.Error
			if errors.As(err, &kerr) && kerr.Code() == kafka.ErrTimedOut {
				continue
			}
			c.logger.Error("Error reading message", "error", err)
			continue
		}

		c.logger.Debug("Received email event",
			"partition", msg.TopicPartition.Partition,
			"offset", msg.TopicPartition.Offset)

		if c.processor.Process(ctx, msg.Value) {
			c.commitMessage(msg)
		}
	}
}

func (c *Consumer) commitMessage(msg *kafka.Message) {
	if _, err := c.consumer.CommitMessage(msg); err != nil {
		c.logger.Error("Failed to commit offset",
			"partition", msg.TopicPartition.Partition,
			"offset", msg.TopicPartition.Offset,
			"error", err)
	}
}

// Close closes the consumer
func (c *Consumer) Close() {
	c.logger.Info("Closing Kafka consumer...")
	if err := c.consumer.Close(); err != nil {
		c.logger.Error("Failed to close consumer", "error", err)
	}
}
