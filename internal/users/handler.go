package users

import (
	"errors"
	"net/http"

	"packtrack/internal/api"
	"packtrack/internal/storage"

	"github.com/gin-gonic/gin"
)

// Handler handles profile HTTP requests
type Handler struct {
	service Service
}

// NewHandler creates a new profile handler
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts profile routes on an authenticated group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/users/:userId/profile", h.GetProfile)
	rg.PATCH("/users/:userId/profile", h.UpdateProfile)
	rg.POST("/users/:userId/profile/picture", h.UploadProfilePicture)
}

// GetProfile handles GET /api/users/:userId/profile
// @Summary Get a rider profile
// @Produce json
// @Param userId path string true "User ID"
// @Success 200 {object} ProfileResponse
// @Failure 401 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /api/users/{userId}/profile [get]
func (h *Handler) GetProfile(c *gin.Context) {
	callerID, _ := api.UserID(c)
	userID := c.Param("userId")
	if !api.ValidID(userID) {
		api.Error(c, http.StatusNotFound, "User not found")
		return
	}

	user, err := h.service.GetProfile(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	// Email is private to its owner.
	if callerID != userID {
		user.Email = ""
	}

	c.JSON(http.StatusOK, ProfileResponse{User: user})
}

// UpdateProfile handles PATCH /api/users/:userId/profile
// @Summary Update own profile
// @Accept json
// @Produce json
// @Param userId path string true "User ID"
// @Param request body UpdateProfileRequest true "Fields to change"
// @Success 200 {object} ProfileResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 403 {object} api.ErrorResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /api/users/{userId}/profile [patch]
func (h *Handler) UpdateProfile(c *gin.Context) {
	callerID, _ := api.UserID(c)
	userID := c.Param("userId")

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.BadRequest(c, "Invalid request body")
		return
	}

	user, err := h.service.UpdateProfile(c.Request.Context(), callerID, userID, req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, ProfileResponse{User: user})
}

// UploadProfilePicture handles POST /api/users/:userId/profile/picture (multipart field "image")
func (h *Handler) UploadProfilePicture(c *gin.Context) {
	callerID, _ := api.UserID(c)
	userID := c.Param("userId")

	if callerID != userID {
		h.writeError(c, ErrUnauthorized)
		return
	}

	fh, err := c.FormFile("image")
	if err != nil {
		api.BadRequest(c, "Image file is required")
		return
	}

	img, err := storage.ReadImage(fh)
	if err != nil {
		h.writeError(c, err)
		return
	}

	user, err := h.service.UploadProfilePicture(c.Request.Context(), callerID, userID, img)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, ProfileResponse{User: user})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		api.Error(c, http.StatusNotFound, "User not found")
	case errors.Is(err, ErrUnauthorized):
		api.Error(c, http.StatusForbidden, "Forbidden: cannot modify another user's profile")
	case errors.Is(err, ErrUsernameTaken):
		api.Error(c, http.StatusConflict, "This username is already in use")
	case errors.Is(err, storage.ErrImageTooLarge):
		api.BadRequest(c, "Image must be 10 MiB or smaller")
	case errors.Is(err, storage.ErrUnsupportedImage):
		api.BadRequest(c, "Image must be JPEG, PNG, GIF or WebP")
	default:
		api.ServerError(c, err)
	}
}
