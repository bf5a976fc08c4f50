package notifications

import "time"

// Type classifies a notification
type Type string

const (
	TypePackJoin             Type = "pack_join"
	TypePackInvite           Type = "pack_invite"
	TypePackRemoved          Type = "pack_removed"
	TypeOwnershipTransferred Type = "ownership_transferred"
)

// Notification is a message addressed to one user
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Type      Type      `json:"type"`
	Message   string    `json:"message"`
	PackID    *string   `json:"packId,omitempty"`
	ActorID   *string   `json:"actorId,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListResponse is the body of GET /api/users/:userId/notifications
type ListResponse struct {
	Notifications []Notification `json:"notifications"`
	Unread        int            `json:"unread"`
}
