package users

import (
	"strings"
	"time"
)

// User is a registered rider
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email,omitempty"`
	Username      *string   `json:"username,omitempty"`
	PasswordHash  string    `json:"-"`
	MFAEnabled    bool      `json:"mfaEnabled"`
	Fullname      string    `json:"fullname"`
	Bio           string    `json:"bio"`
	Bike          string    `json:"bike"`
	Location      string    `json:"location"`
	ProfilePicURL string    `json:"profilePicUrl"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// UpdateProfileRequest is a partial profile update; nil fields are left unchanged
type UpdateProfileRequest struct {
	Fullname   *string `json:"fullname,omitempty" binding:"omitempty,max=100"`
	Username   *string `json:"username,omitempty" binding:"omitempty,min=3,max=30"`
	Bio        *string `json:"bio,omitempty" binding:"omitempty,max=500"`
	Bike       *string `json:"bike,omitempty" binding:"omitempty,max=100"`
	Location   *string `json:"location,omitempty" binding:"omitempty,max=100"`
	MFAEnabled *bool   `json:"mfaEnabled,omitempty"`
}

// Empty reports whether the request changes nothing
func (r UpdateProfileRequest) Empty() bool {
	return r.Fullname == nil && r.Username == nil && r.Bio == nil &&
		r.Bike == nil && r.Location == nil && r.MFAEnabled == nil
}

// ProfileResponse wraps a user for GET/PATCH profile
type ProfileResponse struct {
	User *User `json:"user"`
}

// NormalizeEmail trims and lower-cases an address so lookups are case-insensitive
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
