package packs

import (
	"slices"
	"time"
)

// Visibility controls who can see and directly join a pack
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Role is a member's standing within a pack
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// InvitationStatus tracks an invitation's lifecycle
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
)

// Pack is a group of riders
type Pack struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Visibility  Visibility `json:"visibility"`
	OwnerID     string     `json:"ownerId"`
	Members     []string   `json:"members"`
	Admins      []string   `json:"admins"`
	ShareCode   string     `json:"shareCode,omitempty"`
	ChatEnabled bool       `json:"chatEnabled"`
	ImageURL    string     `json:"imageUrl"`
	MemberCount int        `json:"memberCount"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// IsMember reports whether userID belongs to the pack
func (p *Pack) IsMember(userID string) bool {
	return slices.Contains(p.Members, userID)
}

// IsAdmin reports whether userID holds the admin role
func (p *Pack) IsAdmin(userID string) bool {
	return slices.Contains(p.Admins, userID)
}

// CanInvite reports whether userID may invite others
func (p *Pack) CanInvite(userID string) bool {
	return p.OwnerID == userID || p.IsAdmin(userID)
}

// RoleOf returns userID's role, assuming membership
func (p *Pack) RoleOf(userID string) Role {
	switch {
	case p.OwnerID == userID:
		return RoleOwner
	case p.IsAdmin(userID):
		return RoleAdmin
	default:
		return RoleMember
	}
}

// Invitation asks a user to join a pack
type Invitation struct {
	ID        string           `json:"id"`
	PackID    string           `json:"packId"`
	PackName  string           `json:"packName,omitempty"`
	UserID    string           `json:"userId"`
	InvitedBy string           `json:"invitedBy"`
	Status    InvitationStatus `json:"status"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// Member is a member's public profile with their role
type Member struct {
	UserID        string    `json:"userId"`
	Username      *string   `json:"username,omitempty"`
	Fullname      string    `json:"fullname"`
	ProfilePicURL string    `json:"profilePicUrl"`
	Role          Role      `json:"role"`
	JoinedAt      time.Time `json:"joinedAt"`
}

// CreatePackRequest is the body of POST /api/packs, as JSON or multipart form
type CreatePackRequest struct {
	Name        string     `json:"name" form:"name" binding:"required,max=100"`
	Description string     `json:"description" form:"description" binding:"max=1000"`
	Visibility  Visibility `json:"visibility" form:"visibility" binding:"omitempty,oneof=public private"`
	ChatEnabled *bool      `json:"chatEnabled" form:"chatEnabled"`
}

// UserRequest names the target user of invite and transfer
type UserRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// ShareLink is the body of GET /api/packs/:id/share
type ShareLink struct {
	ShareCode string `json:"shareCode"`
	URL       string `json:"url"`
}

// PackResponse wraps a pack with a status message
type PackResponse struct {
	Message string `json:"message,omitempty"`
	Pack    *Pack  `json:"pack"`
}
