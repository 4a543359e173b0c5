package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/aerodrome-observer/backend/internal/access"
	"github.com/aerodrome-observer/backend/internal/auth"
	"github.com/aerodrome-observer/backend/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubProfiles struct {
	profiles map[uuid.UUID]*models.Profile
	err      error
}

func (s *stubProfiles) GetByID(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	if s.err != nil {
		return nil, s.err
	}
	p, ok := s.profiles[id]
	if !ok {
		return nil, access.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

type stubLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (s *stubLimiter) Allow(_ context.Context, key string) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allow, s.err
}

func bearer(t *testing.T, svc *auth.JWTService, id uuid.UUID) string {
	t.Helper()
	tok, err := svc.Generate(id, "x@example.com", time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func serve(r *gin.Engine, method, path, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWT(t *testing.T) {
	svc := auth.NewJWTService("secret", "", nil)
	id := uuid.New()

	r := gin.New()
	r.GET("/p", JWT(svc), func(c *gin.Context) {
		got, ok := UserID(c)
		require.True(t, ok)
		require.Equal(t, id, got)
		c.Status(http.StatusOK)
	})

	require.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/p", "").Code)
	require.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/p", "Bearer nope").Code)
	require.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/p", "Basic abc").Code)
	require.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/p", bearer(t, svc, id)).Code)
}

func TestOptionalJWT(t *testing.T) {
	svc := auth.NewJWTService("secret", "", nil)

	r := gin.New()
	r.GET("/p", OptionalJWT(svc), func(c *gin.Context) {
		if _, ok := UserID(c); ok {
			c.String(http.StatusOK, "user")
			return
		}
		c.String(http.StatusOK, "anon")
	})

	w := serve(r, http.MethodGet, "/p", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "anon", w.Body.String())

	w = serve(r, http.MethodGet, "/p", bearer(t, svc, uuid.New()))
	require.Equal(t, "user", w.Body.String())

	require.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/p", "Bearer bad").Code)
}

func TestRequireCapability(t *testing.T) {
	svc := auth.NewJWTService("secret", "", nil)
	user, collab, inactive := uuid.New(), uuid.New(), uuid.New()
	store := &stubProfiles{profiles: map[uuid.UUID]*models.Profile{
		user:     {ID: user, Role: models.RoleUser, IsActive: true},
		collab:   {ID: collab, Role: models.RoleCollaborator, IsActive: true},
		inactive: {ID: inactive, Role: models.RoleCollaborator, IsActive: false},
	}}
	gate := access.NewGate(store, access.Policy{}, nil)

	r := gin.New()
	r.POST("/obs", JWT(svc), RequireCapability(gate, access.CapCreateObservation, nil), func(c *gin.Context) {
		d, ok := Decision(c)
		require.True(t, ok)
		require.NotNil(t, d.Profile)
		c.Status(http.StatusCreated)
	})

	require.Equal(t, http.StatusForbidden, serve(r, http.MethodPost, "/obs", bearer(t, svc, user)).Code)
	require.Equal(t, http.StatusCreated, serve(r, http.MethodPost, "/obs", bearer(t, svc, collab)).Code)
	require.Equal(t, http.StatusForbidden, serve(r, http.MethodPost, "/obs", bearer(t, svc, inactive)).Code)
	require.Equal(t, http.StatusForbidden, serve(r, http.MethodPost, "/obs", bearer(t, svc, uuid.New())).Code)

	// Deactivation takes effect on the next request.
	store.profiles[collab].IsActive = false
	require.Equal(t, http.StatusForbidden, serve(r, http.MethodPost, "/obs", bearer(t, svc, collab)).Code)

	store.err = errors.New("connection refused")
	require.Equal(t, http.StatusServiceUnavailable, serve(r, http.MethodPost, "/obs", bearer(t, svc, user)).Code)
}

func TestRateLimit(t *testing.T) {
	lim := &stubLimiter{allow: true}
	r := gin.New()
	r.GET("/v", RateLimit(lim, "validate", nil), func(c *gin.Context) { c.Status(http.StatusOK) })

	require.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/v", "").Code)
	require.Len(t, lim.keys, 1)
	require.Contains(t, lim.keys[0], "validate:")

	lim.allow = false
	require.Equal(t, http.StatusTooManyRequests, serve(r, http.MethodGet, "/v", "").Code)

	lim.err = errors.New("redis down")
	require.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/v", "").Code)
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextRequestID)) })

	w := serve(r, http.MethodGet, "/x", "")
	require.NotEmpty(t, w.Header().Get(HeaderRequestID))
	require.Equal(t, w.Header().Get(HeaderRequestID), w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, "abc-123", w.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS("http://localhost:5173, https://observer.example.org/"))
	r.POST("/invites/accept", func(c *gin.Context) { c.Status(http.StatusOK) })

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/invites/accept", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		req.Header.Set("Access-Control-Request-Headers", "content-type, idempotency-key")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := preflight("http://localhost:5173")
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")
	require.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch)
	require.Contains(t, w.Header().Values("Vary"), "Origin")

	w = preflight("https://observer.example.org")
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "https://observer.example.org", w.Header().Get("Access-Control-Allow-Origin"))

	w = preflight("https://evil.example.net")
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSSimpleRequest(t *testing.T) {
	r := gin.New()
	r.Use(CORS("*"))
	r.GET("/aerodromes", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/aerodromes", nil)
	req.Header.Set("Origin", "https://anywhere.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "X-Request-ID", w.Header().Get("Access-Control-Expose-Headers"))
	require.Empty(t, w.Header().Get("Vary"))

	// Requests without an Origin header carry no CORS headers.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/aerodromes", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
