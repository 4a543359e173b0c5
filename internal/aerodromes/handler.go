package aerodromes

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aerodrome-observer/backend/internal/models"
	"github.com/aerodrome-observer/backend/pkg/response"
)

// Lister lists all aerodromes.
type Lister interface {
	List(ctx context.Context) ([]models.Aerodrome, error)
}

// Handler serves aerodrome endpoints.
type Handler struct {
	summaries *Summaries
	lister    Lister
	maxAge    int
	logger    *zap.Logger
}

// NewHandler creates an aerodrome handler. maxAge is the shared-cache lifetime in seconds.
func NewHandler(summaries *Summaries, lister Lister, maxAge int, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{summaries: summaries, lister: lister, maxAge: maxAge, logger: logger}
}

// List returns all aerodromes.
func (h *Handler) List(c *gin.Context) {
	list, err := h.lister.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list aerodromes", zap.Error(err))
		response.ServiceUnavailable(c, "aerodrome data unavailable")
		return
	}
	if list == nil {
		list = []models.Aerodrome{}
	}
	response.OK(c, list)
}

// Summary returns the aerodrome summary: METAR/TAF, active NOTAMs and latest public observation.
func (h *Handler) Summary(c *gin.Context) {
	icao, ok := NormalizeICAO(c.Param("icao"))
	if !ok {
		response.BadRequest(c, "invalid ICAO code")
		return
	}
	summary, err := h.summaries.Get(c.Request.Context(), icao)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "aerodrome not found")
			return
		}
		h.logger.Error("aerodrome summary", zap.String("icao", icao), zap.Error(err))
		response.ServiceUnavailable(c, "aerodrome data unavailable")
		return
	}
	if h.maxAge > 0 {
		c.Header("Cache-Control", fmt.Sprintf("public, s-maxage=%d, stale-while-revalidate=%d", h.maxAge, h.maxAge/2))
	}
	response.OK(c, summary)
}
