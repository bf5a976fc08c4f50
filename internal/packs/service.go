// Package packs implements pack membership: creation, joining by invitation
// or share code, leaving, removal, ownership and invitations.
package packs

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"packtrack/internal/notifications"
	"packtrack/internal/storage"

	"github.com/google/uuid"
)

const (
	shareCodeLength   = 10
	shareCodeAttempts = 5
	// shareCodeAlphabet is URL-safe and exactly 64 symbols, so a random byte
	// masked to 6 bits picks one without bias.
	shareCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

	sideEffectTimeout = 10 * time.Second
)

// Notifier delivers a notification to a user
type Notifier interface {
	Notify(ctx context.Context, n notifications.Notification) error
}

// Service defines pack operations. Every call acts on behalf of callerID.
type Service interface {
	CreatePack(ctx context.Context, callerID string, req CreatePackRequest, img *storage.Image) (*Pack, error)
	GetPack(ctx context.Context, callerID, packID string) (*Pack, error)
	ListMyPacks(ctx context.Context, callerID string) ([]Pack, error)
	ListPublicPacks(ctx context.Context, callerID string, limit, offset int) ([]Pack, error)
	ListMembers(ctx context.Context, callerID, packID string) ([]Member, error)
	DeletePack(ctx context.Context, callerID, packID string) error

	JoinByInvitation(ctx context.Context, callerID, packID string) (*Pack, error)
	JoinByShareCode(ctx context.Context, callerID, code string) (*Pack, error)
	Leave(ctx context.Context, callerID, packID string) error
	RemoveMember(ctx context.Context, callerID, packID, targetID string) error

	Invite(ctx context.Context, callerID, packID, inviteeID string) (*Invitation, error)
	ListMyInvitations(ctx context.Context, callerID string) ([]Invitation, error)
	TransferOwnership(ctx context.Context, callerID, packID, newOwnerID string) (*Pack, error)
	SetAdmin(ctx context.Context, callerID, packID, targetID string, admin bool) (*Pack, error)
	ShareLink(ctx context.Context, callerID, packID string) (*ShareLink, error)
}

type service struct {
	repo          Repository
	notifier      Notifier
	images        storage.Service
	publicBaseURL string

	newShareCode func() (string, error)
}

// NewService creates the pack service. notifier and images may be nil.
func NewService(repo Repository, notifier Notifier, images storage.Service, publicBaseURL string) Service {
	return &service{
		repo:          repo,
		notifier:      notifier,
		images:        images,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		newShareCode:  generateShareCode,
	}
}

func generateShareCode() (string, error) {
	buf := make([]byte, shareCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate share code: %w", err)
	}
	for i, b := range buf {
		buf[i] = shareCodeAlphabet[b&63]
	}
	return string(buf), nil
}

// visible loads packID as callerID may see it. Private packs are hidden from
// non-members and the share code is stripped for them.
func (s *service) visible(ctx context.Context, callerID, packID string) (*Pack, error) {
	p, err := s.repo.Get(ctx, packID)
	if err != nil {
		return nil, err
	}
	return redact(p, callerID)
}

func redact(p *Pack, callerID string) (*Pack, error) {
	if p.IsMember(callerID) {
		return p, nil
	}
	if p.Visibility == VisibilityPrivate {
		return nil, ErrPackNotFound
	}
	p.ShareCode = ""
	return p, nil
}

func (s *service) CreatePack(ctx context.Context, callerID string, req CreatePackRequest, img *storage.Image) (*Pack, error) {
	now := time.Now().UTC()
	p := &Pack{
		ID:          uuid.New().String(),
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Visibility:  req.Visibility,
		OwnerID:     callerID,
		ChatEnabled: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.Visibility == "" {
		p.Visibility = VisibilityPublic
	}
	if req.ChatEnabled != nil {
		p.ChatEnabled = *req.ChatEnabled
	}

	var imageKey string
	if img != nil {
		if s.images == nil {
			return nil, storage.ErrUnavailable
		}
		imageKey = img.Key(fmt.Sprintf("packs/%s", p.ID))
		url, err := s.images.Upload(ctx, imageKey, img.ContentType, img.Reader(), img.Size())
		if err != nil {
			return nil, err
		}
		p.ImageURL = url
	}

	err := s.insertWithShareCode(ctx, p)
	if err != nil {
		if imageKey != "" {
			s.deleteObject(imageKey)
		}
		return nil, err
	}

	slog.Info("Pack created", "pack_id", p.ID, "owner_id", callerID, "visibility", p.Visibility)
	return p, nil
}

func (s *service) insertWithShareCode(ctx context.Context, p *Pack) error {
	for attempt := 1; ; attempt++ {
		code, err := s.newShareCode()
		if err != nil {
			return err
		}
		p.ShareCode = code

		err = s.repo.Create(ctx, p)
		if !errors.Is(err, errShareCodeTaken) {
			return err
		}
		if attempt == shareCodeAttempts {
			return fmt.Errorf("no free share code after %d attempts: %w", attempt, err)
		}
		slog.Warn("Share code collision, regenerating", "attempt", attempt)
	}
}

func (s *service) GetPack(ctx context.Context, callerID, packID string) (*Pack, error) {
	return s.visible(ctx, callerID, packID)
}

func (s *service) ListMyPacks(ctx context.Context, callerID string) ([]Pack, error) {
	return s.repo.ListByMember(ctx, callerID)
}

func (s *service) ListPublicPacks(ctx context.Context, callerID string, limit, offset int) ([]Pack, error) {
	list, err := s.repo.ListPublic(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if !list[i].IsMember(callerID) {
			list[i].ShareCode = ""
		}
	}
	return list, nil
}

func (s *service) ListMembers(ctx context.Context, callerID, packID string) ([]Member, error) {
	if _, err := s.visible(ctx, callerID, packID); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, packID)
}

func (s *service) DeletePack(ctx context.Context, callerID, packID string) error {
	p, err := s.visible(ctx, callerID, packID)
	if err != nil {
		return err
	}
	if p.OwnerID != callerID {
		return ErrUnauthorized
	}

	if err := s.repo.Delete(ctx, packID, callerID); err != nil {
		return err
	}

	if s.images != nil {
		if key, ok := s.images.KeyFromURL(p.ImageURL); ok {
			s.deleteObject(key)
		}
	}

	slog.Info("Pack deleted", "pack_id", packID, "owner_id", callerID)
	return nil
}

func (s *service) JoinByInvitation(ctx context.Context, callerID, packID string) (*Pack, error) {
	p, err := s.repo.Get(ctx, packID)
	if err != nil {
		return nil, err
	}
	if p.IsMember(callerID) {
		return nil, ErrAlreadyMember
	}

	requireInvitation := p.Visibility == VisibilityPrivate
	if err := s.repo.Join(ctx, packID, callerID, requireInvitation); err != nil {
		return nil, err
	}

	slog.Info("Member joined pack", "pack_id", packID, "user_id", callerID, "via", "invitation")
	s.notify(p.OwnerID, callerID, p, notifications.TypePackJoin, "%s joined your pack %s")
	return s.repo.Get(ctx, packID)
}

func (s *service) JoinByShareCode(ctx context.Context, callerID, code string) (*Pack, error) {
	p, err := s.repo.GetByShareCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if p.IsMember(callerID) {
		return nil, ErrAlreadyMember
	}

	// Holding the code is the authorization, for private packs too.
	if err := s.repo.Join(ctx, p.ID, callerID, false); err != nil {
		return nil, err
	}

	slog.Info("Member joined pack", "pack_id", p.ID, "user_id", callerID, "via", "share_code")
	s.notify(p.OwnerID, callerID, p, notifications.TypePackJoin, "%s joined your pack %s via share link")
	return s.repo.Get(ctx, p.ID)
}

func (s *service) Leave(ctx context.Context, callerID, packID string) error {
	p, err := s.repo.Get(ctx, packID)
	if err != nil {
		return err
	}
	if !p.IsMember(callerID) {
		return ErrNotMember
	}
	if p.OwnerID == callerID {
		return ErrOwnerCannotLeave
	}

	if err := s.repo.RemoveMember(ctx, packID, callerID); err != nil {
		return err
	}

	slog.Info("Member left pack", "pack_id", packID, "user_id", callerID)
	return nil
}

func (s *service) RemoveMember(ctx context.Context, callerID, packID, targetID string) error {
	p, err := s.visible(ctx, callerID, packID)
	if err != nil {
		return err
	}
	if p.OwnerID != callerID {
		return ErrUnauthorized
	}
	if !p.IsMember(targetID) {
		return ErrNotMember
	}
	if targetID == p.OwnerID {
		return ErrOwnerCannotLeave
	}

	if err := s.repo.RemoveMember(ctx, packID, targetID); err != nil {
		return err
	}

	slog.Info("Member removed from pack", "pack_id", packID, "user_id", targetID, "by", callerID)
	s.notify(targetID, callerID, p, notifications.TypePackRemoved, "%s removed you from the pack %s")
	return nil
}

func (s *service) Invite(ctx context.Context, callerID, packID, inviteeID string) (*Invitation, error) {
	p, err := s.visible(ctx, callerID, packID)
	if err != nil {
		return nil, err
	}
	if !p.CanInvite(callerID) {
		return nil, ErrUnauthorized
	}
	if p.IsMember(inviteeID) {
		return nil, ErrAlreadyMember
	}

	now := time.Now().UTC()
	inv := &Invitation{
		ID:        uuid.New().String(),
		PackID:    packID,
		PackName:  p.Name,
		UserID:    inviteeID,
		InvitedBy: callerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.UpsertInvitation(ctx, inv); err != nil {
		return nil, err
	}

	slog.Info("Invitation sent", "pack_id", packID, "user_id", inviteeID, "by", callerID)
	s.notify(inviteeID, callerID, p, notifications.TypePackInvite, "%s invited you to join %s")
	return inv, nil
}

func (s *service) ListMyInvitations(ctx context.Context, callerID string) ([]Invitation, error) {
	return s.repo.ListInvitations(ctx, callerID)
}

func (s *service) TransferOwnership(ctx context.Context, callerID, packID, newOwnerID string) (*Pack, error) {
	p, err := s.visible(ctx, callerID, packID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != callerID {
		return nil, ErrUnauthorized
	}
	if newOwnerID == callerID {
		return p, nil
	}
	if !p.IsMember(newOwnerID) {
		return nil, ErrNotMember
	}

	if err := s.repo.TransferOwnership(ctx, packID, callerID, newOwnerID); err != nil {
		return nil, err
	}

	slog.Info("Pack ownership transferred", "pack_id", packID, "from", callerID, "to", newOwnerID)
	s.notify(newOwnerID, callerID, p, notifications.TypeOwnershipTransferred, "%s made you the owner of %s")
	return s.repo.Get(ctx, packID)
}

func (s *service) SetAdmin(ctx context.Context, callerID, packID, targetID string, admin bool) (*Pack, error) {
	p, err := s.visible(ctx, callerID, packID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != callerID {
		return nil, ErrUnauthorized
	}
	if !p.IsMember(targetID) {
		return nil, ErrNotMember
	}
	if targetID == p.OwnerID || p.IsAdmin(targetID) == admin {
		return p, nil
	}

	if err := s.repo.SetAdmin(ctx, packID, targetID, admin); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, packID)
}

func (s *service) ShareLink(ctx context.Context, callerID, packID string) (*ShareLink, error) {
	p, err := s.visible(ctx, callerID, packID)
	if err != nil {
		return nil, err
	}
	if !p.IsMember(callerID) {
		return nil, ErrUnauthorized
	}
	return &ShareLink{
		ShareCode: p.ShareCode,
		URL:       fmt.Sprintf("%s/join/%s", s.publicBaseURL, p.ShareCode),
	}, nil
}

// notify tells recipientID about something actorID did to p, off the request
// path. format receives the actor's display name and the pack name.
func (s *service) notify(recipientID, actorID string, p *Pack, kind notifications.Type, format string) {
	if s.notifier == nil || recipientID == actorID {
		return
	}

	packID, packName := p.ID, p.Name
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()

		name, err := s.repo.DisplayName(ctx, actorID)
		if err != nil {
			slog.Warn("Failed to resolve actor name", "user_id", actorID, "error", err)
			name = "Someone"
		}

		n := notifications.Notification{
			UserID:  recipientID,
			Type:    kind,
			Message: fmt.Sprintf(format, name, packName),
			PackID:  &packID,
			ActorID: &actorID,
		}
		if err := s.notifier.Notify(ctx, n); err != nil {
			slog.Warn("Failed to deliver notification",
				"type", kind,
				"user_id", recipientID,
				"pack_id", packID,
				"error", err)
		}
	}()
}

func (s *service) deleteObject(key string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
		defer cancel()
		if err := s.images.Delete(ctx, key); err != nil {
			slog.Warn("Failed to delete orphaned object", "key", key, "error", err)
		}
	}()
}
