package email

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of email to be sent
type EventType string

const (
	// EventTypeMFACode carries a login challenge code
	EventTypeMFACode EventType = "mfa_code"
)

// Event is an email job published to Kafka and consumed by the mailer.
type Event struct {
	// MessageID deduplicates redeliveries (UUID v4)
	MessageID string `json:"message_id"`

	EventType EventType `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Recipient string    `json:"recipient"`

	// Data is type specific. For mfa_code: {"code": "123456", "expires_in": "5m0s"}
	Data map[string]any `json:"data"`
}

// NewMFACodeEvent builds the event for a login challenge code
func NewMFACodeEvent(recipient, code string, ttl time.Duration) Event {
	return Event{
		MessageID: uuid.New().String(),
		EventType: EventTypeMFACode,
		Timestamp: time.Now().UTC(),
		Recipient: recipient,
		Data: map[string]any{
			"code":       code,
			"expires_in": ttl.String(),
		},
	}
}

// mfaCode extracts the code and ttl from an mfa_code event
func (e Event) mfaCode() (string, time.Duration, bool) {
	code, ok := e.Data["code"].(string)
	if !ok || code == "" {
		return "", 0, false
	}
	ttl, _ := time.ParseDuration(stringValue(e.Data["expires_in"]))
	return code, ttl, true
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

// Metadata is stored in Redis for each delivered message
type Metadata struct {
	SentAt    time.Time `json:"sent_at"`
	Recipient string    `json:"recipient"`
	EventType EventType `json:"event_type"`
}
