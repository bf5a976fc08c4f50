package mfa

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"sync"
	"time"
)

type challenge struct {
	code      string
	expiresAt time.Time
}

// MemoryStore keeps challenges in process memory. Challenges are lost on
// restart, which only forces the affected users to log in again.
type MemoryStore struct {
	mu         sync.Mutex
	challenges map[string]challenge
	ttl        time.Duration
	now        func() time.Time
	generate   func() (string, error)
}

// NewMemoryStore creates an in-process store with the given code lifetime
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		challenges: make(map[string]challenge),
		ttl:        ttl,
		now:        time.Now,
		generate:   GenerateCode,
	}
}

func (s *MemoryStore) Create(_ context.Context, email string) (string, error) {
	code, err := s.generate()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.challenges[email] = challenge{code: code, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()

	return code, nil
}

func (s *MemoryStore) Consume(_ context.Context, email, code string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.challenges[email]
	if !ok {
		return NotFound, nil
	}

	if s.now().After(ch.expiresAt) {
		delete(s.challenges, email)
		return Expired, nil
	}

	if subtle.ConstantTimeCompare([]byte(ch.code), []byte(code)) != 1 {
		return Mismatch, nil
	}

	delete(s.challenges, email)
	return Verified, nil
}

// Len returns the number of stored challenges, expired ones included
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.challenges)
}

// Sweep drops expired challenges that were never read again
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for email, ch := range s.challenges {
		if now.After(ch.expiresAt) {
			delete(s.challenges, email)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps every interval until ctx is done
func (s *MemoryStore) StartJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.Sweep(); n > 0 {
					slog.Debug("Swept expired MFA challenges", "count", n)
				}
			}
		}
	}()
}
