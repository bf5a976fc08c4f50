package mfa

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeScript atomically reads, checks and deletes a challenge.
// KEYS[1] = challenge key
// ARGV[1] = submitted code
// ARGV[2] = current unix time in milliseconds
// Returns 0 not found, 1 expired, 2 mismatch, 3 verified.
var consumeScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if not v then
    return 0
end

local sep = string.find(v, ":", 1, true)
if not sep then
    redis.call("DEL", KEYS[1])
    return 0
end

local code = string.sub(v, 1, sep - 1)
local expires_at = tonumber(string.sub(v, sep + 1))

if tonumber(ARGV[2]) > expires_at then
    redis.call("DEL", KEYS[1])
    return 1
end

if code ~= ARGV[1] then
    return 2
end

redis.call("DEL", KEYS[1])
return 3
`)

// expiryGrace keeps a key around past its logical expiry so a late read
// reports Expired rather than NotFound.
const expiryGrace = time.Minute

// RedisStore keeps challenges in Redis so several API instances share them
type RedisStore struct {
	client   redis.UniversalClient
	prefix   string
	ttl      time.Duration
	now      func() time.Time
	generate func() (string, error)
}

// NewRedisStore creates a Redis-backed store. An empty prefix defaults to "mfa".
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "mfa"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client:   client,
		prefix:   prefix,
		ttl:      ttl,
		now:      time.Now,
		generate: GenerateCode,
	}
}

func (s *RedisStore) key(email string) string {
	return s.prefix + ":" + email
}

func (s *RedisStore) Create(ctx context.Context, email string) (string, error) {
	code, err := s.generate()
	if err != nil {
		return "", err
	}

	expiresAt := s.now().Add(s.ttl).UnixMilli()
	value := code + ":" + strconv.FormatInt(expiresAt, 10)

	if err := s.client.Set(ctx, s.key(email), value, s.ttl+expiryGrace).Err(); err != nil {
		return "", fmt.Errorf("failed to store MFA challenge: %w", err)
	}

	return code, nil
}

func (s *RedisStore) Consume(ctx context.Context, email, code string) (Outcome, error) {
	res, err := consumeScript.Run(ctx, s.client, []string{s.key(email)}, code, s.now().UnixMilli()).Int()
	if err != nil {
		return NotFound, fmt.Errorf("failed to consume MFA challenge: %w", err)
	}

	switch res {
	case 0:
		return NotFound, nil
	case 1:
		return Expired, nil
	case 2:
		return Mismatch, nil
	case 3:
		return Verified, nil
	default:
		return NotFound, fmt.Errorf("unexpected MFA consume result %d", res)
	}
}
