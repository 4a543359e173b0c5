package invites

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aerodrome-observer/backend/internal/access"
	"github.com/aerodrome-observer/backend/internal/models"
)

// memStore is an in-memory Store. A single mutex makes Consume atomic, which
// is what the row lock gives the PostgreSQL repository.
type memStore struct {
	mu          sync.Mutex
	invites     map[uuid.UUID]*models.Invite
	byToken     map[string]uuid.UUID
	redemptions []models.Redemption
	profiles    map[uuid.UUID]*models.Profile

	err        error
	collisions int
}

func newMemStore() *memStore {
	return &memStore{
		invites:  make(map[uuid.UUID]*models.Invite),
		byToken:  make(map[string]uuid.UUID),
		profiles: make(map[uuid.UUID]*models.Profile),
	}
}

func (m *memStore) addProfile(role models.Role, active bool) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.profiles[id] = &models.Profile{ID: id, Role: role, IsActive: active}
	return id
}

func (m *memStore) profile(id uuid.UUID) *models.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

// insert stores an invite as-is, bypassing Mint's validation.
func (m *memStore) insert(inv models.Invite) *models.Invite {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	m.invites[inv.ID] = &inv
	m.byToken[inv.Token] = inv.ID
	cp := inv
	return &cp
}

func (m *memStore) invite(id uuid.UUID) models.Invite {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.invites[id]
}

func (m *memStore) Create(_ context.Context, inv *models.Invite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.collisions > 0 {
		m.collisions--
		return ErrTokenTaken
	}
	if _, ok := m.byToken[inv.Token]; ok {
		return ErrTokenTaken
	}
	inv.ID = uuid.New()
	inv.Uses = 0
	inv.CreatedAt = time.Now()
	cp := *inv
	m.invites[inv.ID] = &cp
	m.byToken[inv.Token] = inv.ID
	return nil
}

func (m *memStore) GetByToken(_ context.Context, token string) (*models.Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	id, ok := m.byToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.invites[id]
	return &cp, nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	inv, ok := m.invites[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *memStore) List(_ context.Context, createdBy *uuid.UUID) ([]models.Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := []models.Invite{}
	for _, inv := range m.invites {
		if createdBy != nil && inv.CreatedBy != *createdBy {
			continue
		}
		out = append(out, *inv)
	}
	return out, nil
}

func (m *memStore) ListRedemptions(_ context.Context, inviteID uuid.UUID) ([]models.Redemption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Redemption{}
	for _, r := range m.redemptions {
		if r.InviteID == inviteID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) Consume(_ context.Context, req ConsumeRequest) (ConsumeOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return ConsumeOutcome{}, m.err
	}
	id, ok := m.byToken[req.Token]
	if !ok {
		return ConsumeOutcome{Reason: models.ReasonNotFound}, nil
	}
	inv := m.invites[id]
	if req.IdempotencyKey != "" {
		for i := range m.redemptions {
			r := m.redemptions[i]
			if r.InviteID == id && r.ProfileID == req.ConsumerID && r.IdempotencyKey == req.IdempotencyKey {
				cp := *inv
				return ConsumeOutcome{Invite: &cp, Redemption: &r, Replayed: true}, nil
			}
		}
	}
	if reason := inv.Check(req.Now); reason != models.ReasonNone {
		cp := *inv
		return ConsumeOutcome{Reason: reason, Invite: &cp}, nil
	}
	inv.Uses++

	p, ok := m.profiles[req.ConsumerID]
	if !ok {
		p = &models.Profile{ID: req.ConsumerID, Role: models.RoleUser, IsActive: true}
		m.profiles[req.ConsumerID] = p
	}
	p.Role = models.HigherRole(p.Role, inv.RoleToGrant)

	red := models.Redemption{
		ID:             uuid.New(),
		InviteID:       id,
		ProfileID:      req.ConsumerID,
		GrantedRole:    inv.RoleToGrant,
		ResultingRole:  p.Role,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      req.Now,
	}
	m.redemptions = append(m.redemptions, red)
	cp := *inv
	return ConsumeOutcome{Invite: &cp, Redemption: &red}, nil
}

func (m *memStore) Revoke(_ context.Context, id uuid.UUID, at time.Time) (*models.Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	inv, ok := m.invites[id]
	if !ok {
		return nil, ErrNotFound
	}
	if inv.RevokedAt == nil {
		t := at
		inv.RevokedAt = &t
	}
	cp := *inv
	return &cp, nil
}

// memProfiles exposes the store's profiles to the access gate.
type memProfiles struct{ s *memStore }

func (p memProfiles) GetByID(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	prof := p.s.profile(id)
	if prof == nil {
		return nil, access.ErrProfileNotFound
	}
	return prof, nil
}
