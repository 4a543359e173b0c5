package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aerodrome-observer/backend/internal/access"
	"github.com/aerodrome-observer/backend/internal/models"
	"github.com/aerodrome-observer/backend/pkg/response"
)

// ContextDecision is the key for the access.Decision of the current request.
const ContextDecision = "access_decision"

// RequireCapability evaluates the caller's profile on every request and aborts
// unless the resulting capability set includes c. Must run after JWT.
func RequireCapability(gate *access.Gate, c access.Capability, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx *gin.Context) {
		id, ok := UserID(ctx)
		if !ok {
			response.Unauthorized(ctx, "missing user context")
			ctx.Abort()
			return
		}
		d, err := gate.Evaluate(ctx.Request.Context(), id)
		if err != nil {
			logger.Error("authorization check failed", zap.Error(err), zap.String("capability", string(c)))
			response.Fail(ctx, http.StatusServiceUnavailable, string(models.ReasonStoreUnavailable), models.ReasonStoreUnavailable.Message())
			ctx.Abort()
			return
		}
		if !d.Allows(c) {
			response.Fail(ctx, http.StatusForbidden, string(models.ReasonUnauthorized), "insufficient permissions")
			ctx.Abort()
			return
		}
		ctx.Set(ContextDecision, d)
		ctx.Next()
	}
}

// Decision returns the decision stored by RequireCapability, if any.
func Decision(c *gin.Context) (access.Decision, bool) {
	v, ok := c.Get(ContextDecision)
	if !ok {
		return access.Decision{}, false
	}
	d, ok := v.(access.Decision)
	return d, ok
}
