package auth

import (
	"errors"
	"net/http"

	"packtrack/internal/api"
	"packtrack/internal/password"

	"github.com/gin-gonic/gin"
)

// Handler handles authentication-related HTTP requests
type Handler struct {
	service Service
}

// NewHandler creates a new authentication handler
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the public auth endpoints
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/login", h.Login)
	rg.POST("/verify-mfa", h.VerifyMFA)
	rg.POST("/signup", h.Signup)
}

func clientInfo(c *gin.Context) ClientInfo {
	return ClientInfo{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}

// Login handles POST /api/login
// @Summary Log in with email and password
// @Description Returns a session token, or a temporary token when MFA is enabled
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 401 {object} api.ErrorResponse
// @Router /api/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.BadRequest(c, "Email and password are required")
		return
	}

	result, err := h.service.Login(c.Request.Context(), req.Email, req.Password, clientInfo(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	if result.Status == StatusMFARequired {
		c.JSON(http.StatusOK, LoginResponse{Message: "MFA required", TempToken: result.TempToken})
		return
	}
	c.JSON(http.StatusOK, LoginResponse{Message: "Login successful", Token: result.Token})
}

// VerifyMFA handles POST /api/verify-mfa
// @Summary Exchange an MFA code and temporary token for a session
// @Accept json
// @Produce json
// @Param request body VerifyMFARequest true "Code and temporary token"
// @Success 200 {object} SessionResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 401 {object} api.ErrorResponse
// @Router /api/verify-mfa [post]
func (h *Handler) VerifyMFA(c *gin.Context) {
	var req VerifyMFARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.BadRequest(c, "Code and token are required")
		return
	}

	session, err := h.service.VerifyMFA(c.Request.Context(), req.OTP, req.Token, clientInfo(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SessionResponse{Message: "MFA verified", Token: session.Token, User: session.User})
}

// Signup handles POST /api/signup
// @Summary Create an account
// @Accept json
// @Produce json
// @Param request body SignupRequest true "New account"
// @Success 201 {object} SessionResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /api/signup [post]
func (h *Handler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.BadRequest(c, "Fullname, a valid email and a password of at least 6 characters are required")
		return
	}

	session, err := h.service.Signup(c.Request.Context(), req, clientInfo(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SessionResponse{Message: "User created", Token: session.Token, User: session.User})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		api.Error(c, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, ErrInvalidToken):
		api.Error(c, http.StatusUnauthorized, "Invalid or expired token")
	case errors.Is(err, ErrMFACodeNotFound):
		api.Error(c, http.StatusUnauthorized, "No MFA code found")
	case errors.Is(err, ErrMFACodeExpired):
		api.Error(c, http.StatusUnauthorized, "MFA code expired")
	case errors.Is(err, ErrInvalidOrExpiredCode):
		api.Error(c, http.StatusUnauthorized, "Invalid code")
	case errors.Is(err, ErrDuplicateEmail):
		api.Error(c, http.StatusConflict, "User already exists")
	case errors.Is(err, password.ErrPasswordTooLong):
		api.BadRequest(c, "Password must be at most 72 bytes")
	default:
		api.ServerError(c, err)
	}
}
