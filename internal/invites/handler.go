package invites

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aerodrome-observer/backend/internal/middleware"
	"github.com/aerodrome-observer/backend/internal/models"
	"github.com/aerodrome-observer/backend/pkg/response"
)

// HeaderIdempotencyKey lets a client retry POST /invites/accept safely.
const HeaderIdempotencyKey = "Idempotency-Key"

// MaxExpireHours bounds expires_in_hours to ten years.
const MaxExpireHours = 10 * 365 * 24

// MintRequest is the body for POST /invites.
type MintRequest struct {
	RoleToGrant    string     `json:"role_to_grant" binding:"required"`
	ExpiresAt      *time.Time `json:"expires_at"`
	ExpiresInHours *int       `json:"expires_in_hours"` // 0 = never expires
	MaxUses        *int       `json:"max_uses"`         // 0 = unlimited
	Note           string     `json:"note"`
}

// AcceptRequest is the body for POST /invites/accept.
type AcceptRequest struct {
	Token string `json:"token" binding:"required"`
}

// Handler handles invite HTTP endpoints.
type Handler struct {
	svc                *Service
	defaultExpireHours int
	logger             *zap.Logger
}

// NewHandler creates an invites handler. defaultExpireHours applies when a mint
// request gives no expiry; 0 mints non-expiring invites.
func NewHandler(svc *Service, defaultExpireHours int, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, defaultExpireHours: defaultExpireHours, logger: logger}
}

// Mint handles POST /invites.
func (h *Handler) Mint(c *gin.Context) {
	issuerID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	var req MintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, string(models.ReasonInvalidArgument), "invalid request: "+err.Error())
		return
	}
	role, ok := models.ParseRole(req.RoleToGrant)
	if !ok {
		response.Fail(c, http.StatusBadRequest, string(models.ReasonInvalidArgument), "invalid role_to_grant")
		return
	}

	expiresAt := req.ExpiresAt
	if expiresAt == nil {
		hours := h.defaultExpireHours
		if req.ExpiresInHours != nil {
			hours = *req.ExpiresInHours
		}
		if hours < 0 {
			response.Fail(c, http.StatusBadRequest, string(models.ReasonInvalidArgument), "expires_in_hours must not be negative")
			return
		}
		if hours > MaxExpireHours {
			response.Fail(c, http.StatusBadRequest, string(models.ReasonInvalidArgument), fmt.Sprintf("expires_in_hours must not exceed %d", MaxExpireHours))
			return
		}
		if hours > 0 {
			t := time.Now().Add(time.Duration(hours) * time.Hour)
			expiresAt = &t
		}
	}
	maxUses := req.MaxUses
	if maxUses != nil && *maxUses == 0 {
		maxUses = nil
	}

	inv, err := h.svc.Mint(c.Request.Context(), MintParams{
		IssuerID:    issuerID,
		RoleToGrant: role,
		ExpiresAt:   expiresAt,
		MaxUses:     maxUses,
		Note:        req.Note,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, inv)
}

// Validate handles GET /invites/validate/:token. Invalid tokens are a 200 with valid=false.
func (h *Handler) Validate(c *gin.Context) {
	v, err := h.svc.Validate(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{
		"valid":         v.Valid,
		"reason":        v.Reason,
		"role_to_grant": v.RoleToGrant,
		"message":       v.Reason.Message(),
	})
}

// Accept handles POST /invites/accept. The handler never retries a consume.
func (h *Handler) Accept(c *gin.Context) {
	consumerID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	var req AcceptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, string(models.ReasonInvalidArgument), "invalid request: "+err.Error())
		return
	}
	res, err := h.svc.Consume(c.Request.Context(), ConsumeParams{
		Token:          req.Token,
		ConsumerID:     consumerID,
		IdempotencyKey: c.GetHeader(HeaderIdempotencyKey),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	if !res.OK {
		response.Fail(c, StatusFor(res.Reason), string(res.Reason), res.Reason.Message())
		return
	}
	response.OK(c, res)
}

// Revoke handles POST /invites/:id/revoke.
func (h *Handler) Revoke(c *gin.Context) {
	revokerID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, string(models.ReasonInvalidArgument), "invalid invite id")
		return
	}
	inv, err := h.svc.Revoke(c.Request.Context(), id, revokerID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, inv)
}

// List handles GET /invites.
func (h *Handler) List(c *gin.Context) {
	viewerID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	list, err := h.svc.List(c.Request.Context(), viewerID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

// Redemptions handles GET /invites/:id/redemptions.
func (h *Handler) Redemptions(c *gin.Context) {
	viewerID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, string(models.ReasonInvalidArgument), "invalid invite id")
		return
	}
	list, err := h.svc.Redemptions(c.Request.Context(), id, viewerID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

func (h *Handler) fail(c *gin.Context, err error) {
	reason := ReasonOf(err)
	msg := reason.Message()
	var e *Error
	if errors.As(err, &e) && e.Detail != "" && reason != models.ReasonStoreUnavailable {
		msg = e.Detail
	}
	if reason == models.ReasonStoreUnavailable {
		h.logger.Error("invite store failure", zap.Error(err), zap.String("path", c.FullPath()))
	}
	response.Fail(c, StatusFor(reason), string(reason), msg)
}

// StatusFor maps a taxonomy reason to an HTTP status.
func StatusFor(r models.Reason) int {
	switch r {
	case models.ReasonNone:
		return http.StatusOK
	case models.ReasonNotFound:
		return http.StatusNotFound
	case models.ReasonRevoked, models.ReasonExpired, models.ReasonExhaustedUses, models.ReasonAlreadyConsumedByRace:
		return http.StatusConflict
	case models.ReasonUnauthorized:
		return http.StatusForbidden
	case models.ReasonInvalidArgument:
		return http.StatusBadRequest
	case models.ReasonStoreUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
