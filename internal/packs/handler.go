package packs

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"packtrack/internal/api"
	"packtrack/internal/storage"

	"github.com/gin-gonic/gin"
)

const defaultPublicLimit = 20

// Handler handles pack HTTP requests
type Handler struct {
	service Service
}

// NewHandler creates a new pack handler
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts pack routes on an authenticated group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/invitations", h.ListMyInvitations)

	packs := rg.Group("/packs")
	packs.POST("", h.CreatePack)
	packs.GET("", h.ListMyPacks)
	packs.GET("/public", h.ListPublicPacks)
	packs.POST("/join/:shareCode", h.JoinByShareCode)

	pack := packs.Group("/:id", requirePackID)
	pack.GET("", h.GetPack)
	pack.DELETE("", h.DeletePack)
	pack.POST("/join", h.JoinPack)
	pack.POST("/leave", h.LeavePack)
	pack.GET("/members", h.ListMembers)
	pack.DELETE("/members/:userId", h.RemoveMember)
	pack.PUT("/admins/:userId", h.SetAdmin(true))
	pack.DELETE("/admins/:userId", h.SetAdmin(false))
	pack.POST("/invitations", h.Invite)
	pack.POST("/transfer", h.TransferOwnership)
	pack.GET("/share", h.ShareLink)
}

// requirePackID answers 404 for ids that can't name a pack
func requirePackID(c *gin.Context) {
	if !api.ValidID(c.Param("id")) {
		c.AbortWithStatusJSON(http.StatusNotFound, api.ErrorResponse{Message: "Pack not found"})
		return
	}
	c.Next()
}

// CreatePack handles POST /api/packs
// @Summary Create a pack
// @Description Accepts JSON, or multipart form fields with an optional "image" file
// @Accept json,mpfd
// @Produce json
// @Param request body CreatePackRequest true "Pack"
// @Success 201 {object} PackResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 503 {object} api.ErrorResponse
// @Router /api/packs [post]
func (h *Handler) CreatePack(c *gin.Context) {
	callerID, _ := api.UserID(c)

	var (
		req CreatePackRequest
		img *storage.Image
	)

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBind(&req); err != nil {
			api.BadRequest(c, "Pack name is required and visibility must be public or private")
			return
		}
		if fh, err := c.FormFile("image"); err == nil {
			if img, err = storage.ReadImage(fh); err != nil {
				h.writeError(c, err)
				return
			}
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		api.BadRequest(c, "Pack name is required and visibility must be public or private")
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		api.BadRequest(c, "Pack name is required")
		return
	}

	p, err := h.service.CreatePack(c.Request.Context(), callerID, req, img)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, PackResponse{Message: "Pack created", Pack: p})
}

// ListMyPacks handles GET /api/packs
func (h *Handler) ListMyPacks(c *gin.Context) {
	callerID, _ := api.UserID(c)

	list, err := h.service.ListMyPacks(c.Request.Context(), callerID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"packs": list})
}

// ListPublicPacks handles GET /api/packs/public?limit=&offset=
func (h *Handler) ListPublicPacks(c *gin.Context) {
	callerID, _ := api.UserID(c)

	limit, err := queryInt(c, "limit", defaultPublicLimit)
	if err != nil || limit < 1 {
		api.BadRequest(c, "limit must be a positive integer")
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		api.BadRequest(c, "offset must be a non-negative integer")
		return
	}

	list, err := h.service.ListPublicPacks(c.Request.Context(), callerID, limit, offset)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"packs": list, "limit": limit, "offset": offset})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// GetPack handles GET /api/packs/:id
// @Summary Get a pack
// @Produce json
// @Param id path string true "Pack ID"
// @Success 200 {object} PackResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /api/packs/{id} [get]
func (h *Handler) GetPack(c *gin.Context) {
	callerID, _ := api.UserID(c)

	p, err := h.service.GetPack(c.Request.Context(), callerID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, PackResponse{Pack: p})
}

// DeletePack handles DELETE /api/packs/:id
func (h *Handler) DeletePack(c *gin.Context) {
	callerID, _ := api.UserID(c)

	if err := h.service.DeletePack(c.Request.Context(), callerID, c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Pack deleted"})
}

// JoinPack handles POST /api/packs/:id/join
// @Summary Join a pack
// @Description Public packs can be joined directly; private packs need a pending invitation
// @Produce json
// @Param id path string true "Pack ID"
// @Success 200 {object} PackResponse
// @Failure 400 {object} api.ErrorResponse
// @Failure 403 {object} api.ErrorResponse
// @Failure 404 {object} api.ErrorResponse
// @Router /api/packs/{id}/join [post]
func (h *Handler) JoinPack(c *gin.Context) {
	callerID, _ := api.UserID(c)

	p, err := h.service.JoinByInvitation(c.Request.Context(), callerID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, PackResponse{Message: "Joined pack", Pack: p})
}

// JoinByShareCode handles POST /api/packs/join/:shareCode
func (h *Handler) JoinByShareCode(c *gin.Context) {
	callerID, _ := api.UserID(c)

	p, err := h.service.JoinByShareCode(c.Request.Context(), callerID, c.Param("shareCode"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, PackResponse{Message: "Joined pack", Pack: p})
}

// LeavePack handles POST /api/packs/:id/leave
func (h *Handler) LeavePack(c *gin.Context) {
	callerID, _ := api.UserID(c)

	if err := h.service.Leave(c.Request.Context(), callerID, c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Left pack"})
}

// ListMembers handles GET /api/packs/:id/members
func (h *Handler) ListMembers(c *gin.Context) {
	callerID, _ := api.UserID(c)

	members, err := h.service.ListMembers(c.Request.Context(), callerID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"members": members})
}

// RemoveMember handles DELETE /api/packs/:id/members/:userId
func (h *Handler) RemoveMember(c *gin.Context) {
	callerID, _ := api.UserID(c)

	if err := h.service.RemoveMember(c.Request.Context(), callerID, c.Param("id"), c.Param("userId")); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Member removed"})
}

// SetAdmin handles PUT and DELETE /api/packs/:id/admins/:userId
func (h *Handler) SetAdmin(admin bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		callerID, _ := api.UserID(c)

		p, err := h.service.SetAdmin(c.Request.Context(), callerID, c.Param("id"), c.Param("userId"), admin)
		if err != nil {
			h.writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, PackResponse{Pack: p})
	}
}

// Invite handles POST /api/packs/:id/invitations
func (h *Handler) Invite(c *gin.Context) {
	callerID, _ := api.UserID(c)

	var req UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.BadRequest(c, "userId is required")
		return
	}
	if !api.ValidID(req.UserID) {
		h.writeError(c, ErrUserNotFound)
		return
	}

	inv, err := h.service.Invite(c.Request.Context(), callerID, c.Param("id"), req.UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Invitation sent", "invitation": inv})
}

// ListMyInvitations handles GET /api/invitations
func (h *Handler) ListMyInvitations(c *gin.Context) {
	callerID, _ := api.UserID(c)

	list, err := h.service.ListMyInvitations(c.Request.Context(), callerID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"invitations": list})
}

// TransferOwnership handles POST /api/packs/:id/transfer
func (h *Handler) TransferOwnership(c *gin.Context) {
	callerID, _ := api.UserID(c)

	var req UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.BadRequest(c, "userId is required")
		return
	}

	p, err := h.service.TransferOwnership(c.Request.Context(), callerID, c.Param("id"), req.UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, PackResponse{Message: "Ownership transferred", Pack: p})
}

// ShareLink handles GET /api/packs/:id/share
func (h *Handler) ShareLink(c *gin.Context) {
	callerID, _ := api.UserID(c)

	link, err := h.service.ShareLink(c.Request.Context(), callerID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, link)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrPackNotFound):
		api.Error(c, http.StatusNotFound, "Pack not found")
	case errors.Is(err, ErrUserNotFound):
		api.Error(c, http.StatusNotFound, "User not found")
	case errors.Is(err, ErrInvalidShareCode):
		api.Error(c, http.StatusNotFound, "Invalid share code")
	case errors.Is(err, ErrAlreadyMember):
		api.BadRequest(c, "User is already a member of this pack")
	case errors.Is(err, ErrNotMember):
		api.BadRequest(c, "User is not a member of this pack")
	case errors.Is(err, ErrOwnerCannotLeave):
		api.BadRequest(c, "The pack owner cannot leave; transfer ownership first")
	case errors.Is(err, ErrInvitationRequired):
		api.Error(c, http.StatusForbidden, "An invitation is required to join this private pack")
	case errors.Is(err, ErrUnauthorized):
		api.Error(c, http.StatusForbidden, "Forbidden: not allowed to manage this pack")
	case errors.Is(err, storage.ErrImageTooLarge):
		api.BadRequest(c, "Image must be 10 MiB or smaller")
	case errors.Is(err, storage.ErrUnsupportedImage):
		api.BadRequest(c, "Image must be JPEG, PNG, GIF or WebP")
	default:
		api.ServerError(c, err)
	}
}
