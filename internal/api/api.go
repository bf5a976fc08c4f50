// Package api holds the request-context helpers and error responses shared by
// every HTTP handler.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"packtrack/internal/database"
	"packtrack/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Context keys set by the auth middleware
const (
	UserIDKey    = "user_id"
	EmailKey     = "email"
	RequestIDKey = "request_id"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Message string `json:"message"`
}

// SetIdentity stores the authenticated caller on the request context
func SetIdentity(c *gin.Context, userID, email string) {
	c.Set(UserIDKey, userID)
	c.Set(EmailKey, email)
}

// UserID returns the authenticated caller's id
func UserID(c *gin.Context) (string, bool) {
	id := c.GetString(UserIDKey)
	return id, id != ""
}

// Error writes {message} with status
func Error(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{Message: message})
}

// BadRequest reports a malformed body or parameter
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

// ServerError logs err and answers 503 for store outages or a generic 500
// otherwise. Internal detail never reaches the client.
func ServerError(c *gin.Context, err error) {
	attrs := []any{
		"error", err,
		"request_id", c.GetString(RequestIDKey),
		"method", c.Request.Method,
		"path", c.FullPath(),
	}
	_ = c.Error(err)

	if errors.Is(err, database.ErrUnavailable) || errors.Is(err, storage.ErrUnavailable) {
		slog.Warn("Dependency unavailable", attrs...)
		Error(c, http.StatusServiceUnavailable, "Service unavailable")
		return
	}

	slog.Error("Request failed", attrs...)
	Error(c, http.StatusInternalServerError, "Server error")
}

// ValidID reports whether s is a well-formed resource id
func ValidID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
