package profiles

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/aerodrome-observer/backend/internal/access"
	"github.com/aerodrome-observer/backend/internal/auth"
	"github.com/aerodrome-observer/backend/internal/middleware"
	"github.com/aerodrome-observer/backend/internal/models"
)

type memStore struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]*models.Profile
}

func (m *memStore) Ensure(_ context.Context, id uuid.UUID, email string) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		p = &models.Profile{ID: id, Role: models.RoleUser, IsActive: true, ContactEmail: email}
		m.profiles[id] = p
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, access.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) UpdateContact(_ context.Context, id uuid.UUID, u models.ContactUpdate) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, access.ErrProfileNotFound
	}
	p.DisplayName, p.AvatarURL, p.ContactEmail = u.DisplayName, u.AvatarURL, u.ContactEmail
	p.ContactPhone, p.Organization, p.Notes = u.ContactPhone, u.Organization, u.Notes
	cp := *p
	return &cp, nil
}

func (m *memStore) SetActive(_ context.Context, id uuid.UUID, active bool) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, access.ErrProfileNotFound
	}
	p.IsActive = active
	cp := *p
	return &cp, nil
}

func (m *memStore) List(_ context.Context, limit, offset int) ([]models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Profile{}
	for _, p := range m.profiles {
		out = append(out, *p)
	}
	return out, nil
}

type testEnv struct {
	store  *memStore
	router *gin.Engine
	jwt    *auth.JWTService
	admin  uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	admin := uuid.New()
	store := &memStore{profiles: map[uuid.UUID]*models.Profile{
		admin: {ID: admin, Role: models.RoleAdmin, IsActive: true},
	}}
	gate := access.NewGate(store, access.Policy{}, nil)
	jwtSvc := auth.NewJWTService("secret", "", nil)
	h := NewHandler(store, gate, nil)

	r := gin.New()
	api := r.Group("", middleware.JWT(jwtSvc))
	api.GET("/me", h.Me)
	api.PATCH("/me", h.UpdateMe)
	api.GET("/profiles", middleware.RequireCapability(gate, access.CapManageProfiles, nil), h.List)
	api.PATCH("/profiles/:id/active", middleware.RequireCapability(gate, access.CapManageProfiles, nil), h.SetActive)
	return &testEnv{store: store, router: r, jwt: jwtSvc, admin: admin}
}

func (e *testEnv) do(t *testing.T, method, path string, as uuid.UUID, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	tok, err := e.jwt.Generate(as, "me@example.com", time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestMeEnsuresProfile(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New()

	w := env.do(t, http.MethodGet, "/me", id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data MeResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, models.RoleUser, body.Data.Profile.Role)
	require.Equal(t, "me@example.com", body.Data.Profile.ContactEmail)
	require.Equal(t, []access.Capability{access.CapReadPublic}, body.Data.Capabilities)
}

func TestUpdateMeCannotChangeRole(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New()
	env.do(t, http.MethodGet, "/me", id, nil)

	w := env.do(t, http.MethodPatch, "/me", id, gin.H{"display_name": "Ana", "role": "admin"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPatch, "/me", id, gin.H{"is_active": true})
	require.Equal(t, http.StatusBadRequest, w.Code)

	p, err := env.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, models.RoleUser, p.Role)
	require.Empty(t, p.DisplayName)
}

func TestUpdateMeContact(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New()
	env.do(t, http.MethodGet, "/me", id, nil)

	w := env.do(t, http.MethodPatch, "/me", id, gin.H{
		"display_name":  "  Ana Souza ",
		"contact_email": "ana@example.com",
		"organization":  "Aeroclube",
	})
	require.Equal(t, http.StatusOK, w.Code)
	p, err := env.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "Ana Souza", p.DisplayName)
	require.Equal(t, "Aeroclube", p.Organization)

	w = env.do(t, http.MethodPatch, "/me", id, gin.H{"contact_email": "not-an-email"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminEndpoints(t *testing.T) {
	env := newTestEnv(t)
	user := uuid.New()
	env.do(t, http.MethodGet, "/me", user, nil)

	require.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/profiles", user, nil).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/profiles", env.admin, nil).Code)

	w := env.do(t, http.MethodPatch, "/profiles/"+user.String()+"/active", env.admin, gin.H{"is_active": false})
	require.Equal(t, http.StatusOK, w.Code)
	p, err := env.store.GetByID(context.Background(), user)
	require.NoError(t, err)
	require.False(t, p.IsActive)

	w = env.do(t, http.MethodPatch, "/profiles/"+env.admin.String()+"/active", env.admin, gin.H{"is_active": false})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPatch, "/profiles/"+uuid.NewString()+"/active", env.admin, gin.H{"is_active": true})
	require.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPatch, "/profiles/"+user.String()+"/active", env.admin, gin.H{})
	require.Equal(t, http.StatusBadRequest, w.Code)
}
