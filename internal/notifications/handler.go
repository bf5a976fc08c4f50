package notifications

import (
	"errors"
	"net/http"

	"packtrack/internal/api"

	"github.com/gin-gonic/gin"
)

// Handler handles notification HTTP requests
type Handler struct {
	service Service
}

// NewHandler creates a new notification handler
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts notification routes on an authenticated group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/users/:userId/notifications", h.List)
	rg.POST("/users/:userId/notifications/:notificationId/read", h.MarkRead)
	rg.DELETE("/users/:userId/notifications/:notificationId", h.Delete)
	rg.DELETE("/users/:userId/notifications", h.Clear)
}

// List handles GET /api/users/:userId/notifications[?unread=true]
func (h *Handler) List(c *gin.Context) {
	callerID, _ := api.UserID(c)
	unreadOnly := c.Query("unread") == "true"

	list, err := h.service.List(c.Request.Context(), callerID, c.Param("userId"), unreadOnly)
	if err != nil {
		h.writeError(c, err)
		return
	}

	unread := 0
	for _, n := range list {
		if !n.Read {
			unread++
		}
	}

	c.JSON(http.StatusOK, ListResponse{Notifications: list, Unread: unread})
}

// MarkRead handles POST /api/users/:userId/notifications/:notificationId/read
func (h *Handler) MarkRead(c *gin.Context) {
	callerID, _ := api.UserID(c)

	if err := h.service.MarkRead(c.Request.Context(), callerID, c.Param("userId"), c.Param("notificationId")); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

// Delete handles DELETE /api/users/:userId/notifications/:notificationId
func (h *Handler) Delete(c *gin.Context) {
	callerID, _ := api.UserID(c)

	if err := h.service.Delete(c.Request.Context(), callerID, c.Param("userId"), c.Param("notificationId")); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Notification deleted"})
}

// Clear handles DELETE /api/users/:userId/notifications
func (h *Handler) Clear(c *gin.Context) {
	callerID, _ := api.UserID(c)

	deleted, err := h.service.Clear(c.Request.Context(), callerID, c.Param("userId"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Notifications cleared", "deleted": deleted})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		api.Error(c, http.StatusForbidden, "Forbidden: cannot access another user's notifications")
	case errors.Is(err, ErrNotFound):
		api.Error(c, http.StatusNotFound, "Notification not found")
	default:
		api.ServerError(c, err)
	}
}
