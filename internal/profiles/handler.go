// Package profiles serves the caller's own profile and the admin profile directory.
package profiles

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aerodrome-observer/backend/internal/access"
	"github.com/aerodrome-observer/backend/internal/middleware"
	"github.com/aerodrome-observer/backend/internal/models"
	"github.com/aerodrome-observer/backend/pkg/response"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Store is the profile persistence used by the handler.
type Store interface {
	Ensure(ctx context.Context, id uuid.UUID, email string) (*models.Profile, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	UpdateContact(ctx context.Context, id uuid.UUID, u models.ContactUpdate) (*models.Profile, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.Profile, error)
	List(ctx context.Context, limit, offset int) ([]models.Profile, error)
}

// UpdateMeRequest is the body for PATCH /me. Every field is replaced.
type UpdateMeRequest struct {
	DisplayName  string `json:"display_name" binding:"max=120"`
	AvatarURL    string `json:"avatar_url" binding:"omitempty,url,max=500"`
	ContactEmail string `json:"contact_email" binding:"omitempty,email,max=254"`
	ContactPhone string `json:"contact_phone" binding:"max=40"`
	Organization string `json:"organization" binding:"max=120"`
	Notes        string `json:"notes" binding:"max=1000"`
}

// SetActiveRequest is the body for PATCH /profiles/:id/active.
type SetActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// MeResponse is the caller's profile with its current capabilities.
type MeResponse struct {
	Profile      *models.Profile     `json:"profile"`
	Capabilities []access.Capability `json:"capabilities"`
}

// Handler handles profile HTTP endpoints.
type Handler struct {
	store  Store
	gate   *access.Gate
	logger *zap.Logger
}

// NewHandler creates a profiles handler.
func NewHandler(store Store, gate *access.Gate, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, gate: gate, logger: logger}
}

// Me handles GET /me. The profile is created with the default role on first call.
func (h *Handler) Me(c *gin.Context) {
	id, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	p, err := h.store.Ensure(c.Request.Context(), id, c.GetString(middleware.ContextUserEmail))
	if err != nil {
		h.logger.Error("ensure profile", zap.Error(err), zap.String("profile_id", id.String()))
		response.ServiceUnavailable(c, "failed to load profile")
		return
	}
	response.OK(c, MeResponse{Profile: p, Capabilities: access.Capabilities(p, h.gate.Policy()).List()})
}

// UpdateMe handles PATCH /me. Role and active flag are not editable here.
func (h *Handler) UpdateMe(c *gin.Context) {
	id, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	var raw map[string]interface{}
	if err := c.ShouldBindBodyWith(&raw, binding.JSON); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	for _, field := range []string{"role", "is_active", "id"} {
		if _, present := raw[field]; present {
			response.Fail(c, http.StatusBadRequest, string(models.ReasonInvalidArgument), field+" cannot be changed")
			return
		}
	}
	var req UpdateMeRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	upd := models.ContactUpdate(req)
	upd.Trim()

	p, err := h.store.UpdateContact(c.Request.Context(), id, upd)
	if errors.Is(err, access.ErrProfileNotFound) {
		response.NotFound(c, "profile not found")
		return
	}
	if err != nil {
		h.logger.Error("update profile", zap.Error(err), zap.String("profile_id", id.String()))
		response.ServiceUnavailable(c, "failed to update profile")
		return
	}
	response.OK(c, p)
}

// List handles GET /profiles.
func (h *Handler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	list, err := h.store.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list profiles", zap.Error(err))
		response.ServiceUnavailable(c, "failed to list profiles")
		return
	}
	response.OK(c, list)
}

// SetActive handles PATCH /profiles/:id/active.
func (h *Handler) SetActive(c *gin.Context) {
	adminID, _ := middleware.UserID(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid profile id")
		return
	}
	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if id == adminID && !*req.IsActive {
		response.BadRequest(c, "cannot deactivate your own profile")
		return
	}
	p, err := h.store.SetActive(c.Request.Context(), id, *req.IsActive)
	if errors.Is(err, access.ErrProfileNotFound) {
		response.NotFound(c, "profile not found")
		return
	}
	if err != nil {
		h.logger.Error("set profile active", zap.Error(err), zap.String("profile_id", id.String()))
		response.ServiceUnavailable(c, "failed to update profile")
		return
	}
	h.logger.Info("profile active flag changed",
		zap.String("profile_id", id.String()),
		zap.Bool("is_active", p.IsActive),
		zap.String("admin_id", adminID.String()),
	)
	response.OK(c, p)
}
