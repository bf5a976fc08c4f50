// Package mfa stores one-time login challenge codes keyed by email.
//
// At most one challenge is live per email. Consume is an atomic
// test-and-delete, so a code can succeed at most once.
package mfa

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// DefaultTTL is how long a challenge code stays valid
const DefaultTTL = 5 * time.Minute

// Outcome is the result of consuming a challenge
type Outcome int

const (
	// Verified means the code matched and the challenge was removed
	Verified Outcome = iota
	// NotFound means no challenge exists for the email
	NotFound
	// Expired means the challenge had expired and was removed
	Expired
	// Mismatch means the code was wrong; the challenge stays for a retry
	Mismatch
)

// Valid reports whether the code was accepted
func (o Outcome) Valid() bool {
	return o == Verified
}

func (o Outcome) String() string {
	switch o {
	case Verified:
		return "verified"
	case NotFound:
		return "not_found"
	case Expired:
		return "expired"
	case Mismatch:
		return "mismatch"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Store holds pending challenges
type Store interface {
	// Create generates a code for email, replacing any pending one
	Create(ctx context.Context, email string) (string, error)
	// Consume checks code against the pending challenge for email
	Consume(ctx context.Context, email, code string) (Outcome, error)
}

// GenerateCode returns a uniformly random code in [100000, 999999]
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed to generate secure random number: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
