package email

import (
	"context"
	"fmt"
	"time"
)

// publishTimeout bounds the wait for a broker delivery report
const publishTimeout = 5 * time.Second

// Publisher publishes a JSON event and waits for the broker to acknowledge it
type Publisher interface {
	PublishSync(ctx context.Context, topic, key string, event any) error
}

// QueuedSender hands emails to the mailer worker through Kafka instead of
// sending them in the request path.
type QueuedSender struct {
	publisher Publisher
	topic     string
}

// NewQueuedSender creates a sender that publishes to topic
func NewQueuedSender(publisher Publisher, topic string) *QueuedSender {
	return &QueuedSender{publisher: publisher, topic: topic}
}

// SendMFACode queues an mfa_code event for email
func (q *QueuedSender) SendMFACode(email, code string, ttl time.Duration) error {
	return q.SendEvent(NewMFACodeEvent(email, code, ttl))
}

// SendEvent publishes event keyed by recipient so one inbox's mail stays ordered
func (q *QueuedSender) SendEvent(event Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := q.publisher.PublishSync(ctx, q.topic, event.Recipient, event); err != nil {
		return fmt.Errorf("failed to queue email event: %w", err)
	}
	return nil
}
