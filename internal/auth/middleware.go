package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"packtrack/internal/api"

	"github.com/gin-gonic/gin"
)

// RequireAuth validates the bearer token and injects the caller's identity.
// Temporary MFA tokens are rejected.
func RequireAuth(service Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, tok, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tok) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorResponse{Message: "Authorization token required"})
			return
		}

		claims, err := service.Authenticate(strings.TrimSpace(tok))
		if err != nil {
			slog.Debug("Rejected bearer token",
				"request_id", c.GetString(api.RequestIDKey),
				"error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorResponse{Message: "Invalid or expired token"})
			return
		}

		api.SetIdentity(c, claims.UserID, claims.Email)
		c.Next()
	}
}
