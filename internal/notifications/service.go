// Package notifications stores per-user notifications and lets each user
// read and dismiss their own.
package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrUnauthorized is returned when the caller targets another user's notifications
var ErrUnauthorized = errors.New("cannot access another user's notifications")

// Service defines notification operations
type Service interface {
	// Notify stores n for n.UserID
	Notify(ctx context.Context, n Notification) error
	List(ctx context.Context, callerID, userID string, unreadOnly bool) ([]Notification, error)
	MarkRead(ctx context.Context, callerID, userID, id string) error
	Delete(ctx context.Context, callerID, userID, id string) error
	Clear(ctx context.Context, callerID, userID string) (int64, error)
}

type service struct {
	repo Repository
}

// NewService creates a notification service
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) Notify(ctx context.Context, n Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	return s.repo.Create(ctx, &n)
}

func (s *service) List(ctx context.Context, callerID, userID string, unreadOnly bool) ([]Notification, error) {
	if callerID != userID {
		return nil, ErrUnauthorized
	}
	return s.repo.List(ctx, userID, unreadOnly)
}

func (s *service) MarkRead(ctx context.Context, callerID, userID, id string) error {
	if callerID != userID {
		return ErrUnauthorized
	}
	return s.repo.MarkRead(ctx, userID, id)
}

func (s *service) Delete(ctx context.Context, callerID, userID, id string) error {
	if callerID != userID {
		return ErrUnauthorized
	}
	return s.repo.Delete(ctx, userID, id)
}

func (s *service) Clear(ctx context.Context, callerID, userID string) (int64, error) {
	if callerID != userID {
		return 0, ErrUnauthorized
	}
	return s.repo.DeleteAll(ctx, userID)
}
