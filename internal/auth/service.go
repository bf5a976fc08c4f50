// Package auth implements password login with an optional emailed MFA code,
// signup, and the bearer token check guarding the rest of the API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"packtrack/internal/mfa"
	"packtrack/internal/password"
	"packtrack/internal/token"
	"packtrack/internal/users"

	"github.com/google/uuid"
)

// accessLogTimeout bounds the detached access-log write
const accessLogTimeout = 5 * time.Second

var (
	// ErrInvalidCredentials covers both unknown email and wrong password
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrDuplicateEmail is returned by Signup for a registered email
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrInvalidToken is returned for a missing, malformed, expired or wrong-kind token
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrInvalidOrExpiredCode is the parent of every MFA code failure
	ErrInvalidOrExpiredCode = errors.New("invalid or expired code")

	ErrMFACodeNotFound = fmt.Errorf("%w: no MFA code found", ErrInvalidOrExpiredCode)
	ErrMFACodeExpired  = fmt.Errorf("%w: MFA code expired", ErrInvalidOrExpiredCode)
	ErrInvalidMFACode  = fmt.Errorf("%w: invalid code", ErrInvalidOrExpiredCode)
)

// UserStore is the slice of the user repository authentication needs
type UserStore interface {
	Create(ctx context.Context, u *users.User) error
	GetByEmail(ctx context.Context, email string) (*users.User, error)
}

// CodeSender delivers a challenge code out of band
type CodeSender interface {
	SendMFACode(email, code string, ttl time.Duration) error
}

// Service defines the authentication flows
type Service interface {
	Login(ctx context.Context, email, password string, client ClientInfo) (*LoginResult, error)
	VerifyMFA(ctx context.Context, otp, tempToken string, client ClientInfo) (*Session, error)
	Signup(ctx context.Context, req SignupRequest, client ClientInfo) (*Session, error)
	// Authenticate validates a full bearer token
	Authenticate(tokenString string) (*token.Claims, error)
}

type service struct {
	users     UserStore
	hasher    *password.Hasher
	tokens    *token.Manager
	codes     mfa.Store
	sender    CodeSender
	accessLog AccessLog
	codeTTL   time.Duration

	// dummyHash equalises the cost of rejecting an unknown email
	dummyOnce sync.Once
	dummyHash string
}

// NewService creates the authentication service. accessLog may be nil.
func NewService(
	userStore UserStore,
	hasher *password.Hasher,
	tokens *token.Manager,
	codes mfa.Store,
	sender CodeSender,
	accessLog AccessLog,
	codeTTL time.Duration,
) Service {
	if codeTTL <= 0 {
		codeTTL = mfa.DefaultTTL
	}
	return &service{
		users:     userStore,
		hasher:    hasher,
		tokens:    tokens,
		codes:     codes,
		sender:    sender,
		accessLog: accessLog,
		codeTTL:   codeTTL,
	}
}

func (s *service) Login(ctx context.Context, email, pw string, client ClientInfo) (*LoginResult, error) {
	email = users.NormalizeEmail(email)

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, users.ErrNotFound) {
		s.burnHash(pw)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !s.hasher.Verify(pw, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if !user.MFAEnabled {
		tok, err := s.tokens.IssueFull(user.ID, user.Email)
		if err != nil {
			return nil, err
		}
		s.recordAccess(user.ID, EventLogin, client)
		return &LoginResult{Status: StatusAuthenticated, Token: tok}, nil
	}

	code, err := s.codes.Create(ctx, user.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to create MFA challenge: %w", err)
	}
	if err := s.sender.SendMFACode(user.Email, code, s.codeTTL); err != nil {
		return nil, fmt.Errorf("failed to deliver MFA code: %w", err)
	}

	temp, err := s.tokens.IssueTemp(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	slog.Info("MFA challenge issued", "user_id", user.ID)
	return &LoginResult{Status: StatusMFARequired, TempToken: temp}, nil
}

func (s *service) VerifyMFA(ctx context.Context, otp, tempToken string, client ClientInfo) (*Session, error) {
	claims, ok := s.tokens.Verify(tempToken)
	if !ok || !claims.IsTemp {
		return nil, ErrInvalidToken
	}

	outcome, err := s.codes.Consume(ctx, claims.Email, otp)
	if err != nil {
		return nil, fmt.Errorf("failed to check MFA code: %w", err)
	}
	switch outcome {
	case mfa.Verified:
	case mfa.NotFound:
		return nil, ErrMFACodeNotFound
	case mfa.Expired:
		return nil, ErrMFACodeExpired
	default:
		return nil, ErrInvalidMFACode
	}

	user, err := s.users.GetByEmail(ctx, claims.Email)
	if errors.Is(err, users.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}

	tok, err := s.tokens.IssueFull(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	s.recordAccess(user.ID, EventMFAVerified, client)
	return &Session{Token: tok, User: user}, nil
}

func (s *service) Signup(ctx context.Context, req SignupRequest, client ClientInfo) (*Session, error) {
	digest, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := &users.User{
		ID:           uuid.New().String(),
		Email:        users.NormalizeEmail(req.Email),
		PasswordHash: digest,
		Fullname:     req.Fullname,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, users.ErrEmailExists) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}

	tok, err := s.tokens.IssueFull(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	slog.Info("User signed up", "user_id", user.ID)
	s.recordAccess(user.ID, EventSignup, client)
	return &Session{Token: tok, User: user}, nil
}

func (s *service) Authenticate(tokenString string) (*token.Claims, error) {
	claims, ok := s.tokens.Verify(tokenString)
	if !ok || claims.IsTemp {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *service) burnHash(pw string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("packtrack-timing-equaliser")
	})
	s.hasher.Verify(pw, s.dummyHash)
}

// recordAccess writes the audit row in the background; failures are logged only.
func (s *service) recordAccess(userID, event string, client ClientInfo) {
	if s.accessLog == nil {
		return
	}

	entry := AccessEntry{
		UserID:    userID,
		Event:     event,
		IP:        client.IP,
		UserAgent: client.UserAgent,
		CreatedAt: time.Now().UTC(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), accessLogTimeout)
		defer cancel()
		if err := s.accessLog.Record(ctx, entry); err != nil {
			slog.Warn("Failed to record access", "user_id", userID, "event", event, "error", err)
		}
	}()
}
