// Package token issues and verifies the signed bearer tokens handed to clients.
//
// Full tokens authenticate API calls. Temporary tokens only carry identity
// from a password login to MFA verification.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// Issuer is stamped into every token and required on verification
	Issuer = "packtrack"

	// DefaultFullTTL is the lifetime of a full session token
	DefaultFullTTL = 24 * time.Hour
	// DefaultTempTTL is the lifetime of a temporary MFA token
	DefaultTempTTL = 5 * time.Minute
)

// Claims is the token payload
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	IsTemp bool   `json:"isTemp"`
	jwt.RegisteredClaims
}

// Manager signs and verifies HS256 tokens with a process-wide secret
type Manager struct {
	secret  []byte
	fullTTL time.Duration
	tempTTL time.Duration
	now     func() time.Time
}

// NewManager creates a token manager. Non-positive TTLs fall back to the defaults.
func NewManager(secret []byte, fullTTL, tempTTL time.Duration) (*Manager, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret is required")
	}
	if fullTTL <= 0 {
		fullTTL = DefaultFullTTL
	}
	if tempTTL <= 0 {
		tempTTL = DefaultTempTTL
	}

	return &Manager{
		secret:  secret,
		fullTTL: fullTTL,
		tempTTL: tempTTL,
		now:     time.Now,
	}, nil
}

// IssueFull signs a full session token
func (m *Manager) IssueFull(userID, email string) (string, error) {
	return m.issue(userID, email, false, m.fullTTL)
}

// IssueTemp signs a temporary token accepted only by MFA verification
func (m *Manager) IssueTemp(userID, email string) (string, error) {
	return m.issue(userID, email, true, m.tempTTL)
}

func (m *Manager) issue(userID, email string, isTemp bool, ttl time.Duration) (string, error) {
	now := m.now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		IsTemp: isTemp,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify checks signature, algorithm, issuer and expiry. Any failure
// returns ok=false; callers treat every cause as unauthenticated.
func (m *Manager) Verify(tokenString string) (*Claims, bool) {
	if tokenString == "" {
		return nil, false
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !parsed.Valid {
		return nil, false
	}
	if claims.UserID == "" || claims.Email == "" {
		return nil, false
	}

	return claims, true
}
