package auth

import (
	"time"

	"packtrack/internal/users"
)

// Status is the outcome of a password login
type Status string

const (
	// StatusAuthenticated means a full token was issued
	StatusAuthenticated Status = "authenticated"
	// StatusMFARequired means a code was sent and a temporary token issued
	StatusMFARequired Status = "mfa_required"
)

// Access log events
const (
	EventLogin       = "login"
	EventMFAVerified = "mfa_verified"
	EventSignup      = "signup"
)

// LoginRequest is the request payload for a password login
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// VerifyMFARequest carries the emailed code and the temporary token from login
type VerifyMFARequest struct {
	OTP   string `json:"otp" binding:"required"`
	Token string `json:"token" binding:"required"`
}

// SignupRequest is the request payload for account creation
type SignupRequest struct {
	Fullname string `json:"fullname" binding:"required,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

// ClientInfo identifies the caller for the access log
type ClientInfo struct {
	IP        string
	UserAgent string
}

// LoginResult is returned by Login. Exactly one of Token and TempToken is set.
type LoginResult struct {
	Status    Status
	Token     string
	TempToken string
}

// Session is a full token and the user it belongs to
type Session struct {
	Token string
	User  *users.User
}

// LoginResponse is the body of a successful POST /api/login
type LoginResponse struct {
	Message   string `json:"message"`
	Token     string `json:"token,omitempty"`
	TempToken string `json:"tempToken,omitempty"`
}

// SessionResponse is the body of verify-mfa and signup
type SessionResponse struct {
	Message string      `json:"message"`
	Token   string      `json:"token"`
	User    *users.User `json:"user"`
}

// AccessEntry is one audit row
type AccessEntry struct {
	UserID    string
	Event     string
	IP        string
	UserAgent string
	CreatedAt time.Time
}
