package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aerodrome-observer/backend/internal/auth"
	"github.com/aerodrome-observer/backend/pkg/response"
)

const (
	// ContextUserID is the key for the identity ID in gin context.
	ContextUserID = "user_id"
	// ContextUserEmail is the key for the identity email in gin context.
	ContextUserEmail = "user_email"
)

// JWT returns a middleware that requires a valid identity token.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		if !authenticate(c, jwtService, header) {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Next()
	}
}

// OptionalJWT sets the identity when an Authorization header is present and
// lets anonymous requests through. A present but invalid token is rejected.
func OptionalJWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		if !authenticate(c, jwtService, header) {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Next()
	}
}

func authenticate(c *gin.Context, jwtService *auth.JWTService, header string) bool {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return false
	}
	id, err := jwtService.Validate(strings.TrimSpace(parts[1]))
	if err != nil {
		return false
	}
	c.Set(ContextUserID, id.ID)
	c.Set(ContextUserEmail, id.Email)
	return true
}

// UserID returns the authenticated identity ID, if any.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok && id != uuid.Nil
}
