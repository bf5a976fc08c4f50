// Package users implements rider accounts: the credential store used by
// authentication and the profile operations exposed to clients.
package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"packtrack/internal/storage"
)

// ErrUnauthorized is returned when the caller targets another user's profile
var ErrUnauthorized = errors.New("cannot modify another user's profile")

// cleanupTimeout bounds best-effort object deletes that outlive the request
const cleanupTimeout = 10 * time.Second

// Service defines profile operations
type Service interface {
	GetProfile(ctx context.Context, userID string) (*User, error)
	UpdateProfile(ctx context.Context, callerID, userID string, req UpdateProfileRequest) (*User, error)
	UploadProfilePicture(ctx context.Context, callerID, userID string, img *storage.Image) (*User, error)
}

type service struct {
	repo   Repository
	images storage.Service
}

// NewService creates a profile service. images may be nil when object storage
// isn't configured; picture uploads then fail with storage.ErrUnavailable.
func NewService(repo Repository, images storage.Service) Service {
	return &service{repo: repo, images: images}
}

func (s *service) GetProfile(ctx context.Context, userID string) (*User, error) {
	return s.repo.GetByID(ctx, userID)
}

func (s *service) UpdateProfile(ctx context.Context, callerID, userID string, req UpdateProfileRequest) (*User, error) {
	if callerID != userID {
		return nil, ErrUnauthorized
	}

	u, err := s.repo.Update(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	slog.Info("Profile updated", "user_id", userID)
	return u, nil
}

func (s *service) UploadProfilePicture(ctx context.Context, callerID, userID string, img *storage.Image) (*User, error) {
	if callerID != userID {
		return nil, ErrUnauthorized
	}
	if s.images == nil {
		return nil, storage.ErrUnavailable
	}

	current, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	key := img.Key(fmt.Sprintf("users/%s", userID))
	url, err := s.images.Upload(ctx, key, img.ContentType, img.Reader(), img.Size())
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.SetProfilePicURL(ctx, userID, url)
	if err != nil {
		s.deleteObject(key)
		return nil, err
	}

	if oldKey, ok := s.images.KeyFromURL(current.ProfilePicURL); ok {
		s.deleteObject(oldKey)
	}

	return updated, nil
}

func (s *service) deleteObject(key string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		if err := s.images.Delete(ctx, key); err != nil {
			slog.Warn("Failed to delete orphaned object", "key", key, "error", err)
		}
	}()
}
