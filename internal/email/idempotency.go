package email

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultDedupTTL is how long delivered message ids are remembered
const DefaultDedupTTL = 24 * time.Hour

// ErrMessageNotFound is returned when no delivery record exists
var ErrMessageNotFound = errors.New("message not found")

const sentKeyPrefix = "email:sent:"

// IdempotencyStore handles deduplication of email events
type IdempotencyStore struct {
	redis  redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewIdempotencyStore creates a new idempotency store
func NewIdempotencyStore(client redis.UniversalClient, logger *slog.Logger) *IdempotencyStore {
	return &IdempotencyStore{
		redis:  client,
		ttl:    DefaultDedupTTL,
		logger: logger,
	}
}

func (s *IdempotencyStore) buildKey(messageID string) string {
	return sentKeyPrefix + messageID
}

// IsProcessed checks if an email event has already been delivered
func (s *IdempotencyStore) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	exists, err := s.redis.Exists(ctx, s.buildKey(messageID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check if message is processed: %w", err)
	}
	return exists > 0, nil
}

// MarkAsProcessed records a delivery. It returns false if another consumer
// already recorded the same message id.
func (s *IdempotencyStore) MarkAsProcessed(ctx context.Context, event Event) (bool, error) {
	metadataJSON, err := json.Marshal(Metadata{
		SentAt:    time.Now().UTC(),
		Recipient: event.Recipient,
		EventType: event.EventType,
	})
	if err != nil {
		return false, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	success, err := s.redis.SetNX(ctx, s.buildKey(event.MessageID), metadataJSON, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark message as processed: %w", err)
	}

	if success {
		s.logger.Debug("Marked email as processed", "messageID", event.MessageID, "type", event.EventType)
	} else {
		s.logger.Warn("Email already processed (duplicate detected)", "messageID", event.MessageID, "type", event.EventType)
	}

	return success, nil
}

// GetMetadata retrieves the delivery record for a message
func (s *IdempotencyStore) GetMetadata(ctx context.Context, messageID string) (*Metadata, error) {
	data, err := s.redis.Get(ctx, s.buildKey(messageID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &metadata, nil
}

// Count returns the number of live delivery records. Keys expire on their own;
// this is only for monitoring.
func (s *IdempotencyStore) Count(ctx context.Context) (int64, error) {
	var (
		cursor uint64
		count  int64
	)

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, sentKeyPrefix+"*", 100).Result()
		if err != nil {
			return count, fmt.Errorf("failed to scan keys: %w", err)
		}
		count += int64(len(keys))

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return count, nil
}
