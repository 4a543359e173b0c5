package access

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/aerodrome-observer/backend/internal/models"
)

type fakeProfiles struct {
	byID map[uuid.UUID]*models.Profile
	err  error
	hits int
}

func (f *fakeProfiles) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	f.hits++
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.byID[id]
	if !ok {
		return nil, fmt.Errorf("profiles: %w", ErrProfileNotFound)
	}
	cp := *p
	return &cp, nil
}

func TestCapabilitiesMatrix(t *testing.T) {
	tests := []struct {
		name    string
		profile *models.Profile
		policy  Policy
		allow   []Capability
		deny    []Capability
	}{
		{
			name:  "missing profile",
			allow: []Capability{CapReadPublic},
			deny:  []Capability{CapCreateObservation, CapMintInvites, CapReadRestricted},
		},
		{
			name:    "user",
			profile: &models.Profile{Role: models.RoleUser, IsActive: true},
			allow:   []Capability{CapReadPublic},
			deny:    []Capability{CapCreateObservation, CapMintInvites},
		},
		{
			name:    "collaborator default policy",
			profile: &models.Profile{Role: models.RoleCollaborator, IsActive: true},
			allow:   []Capability{CapReadPublic, CapReadRestricted, CapCreateObservation},
			deny:    []Capability{CapMintInvites, CapRevokeAnyInvite, CapMintAnyRole},
		},
		{
			name:    "collaborator may mint",
			profile: &models.Profile{Role: models.RoleCollaborator, IsActive: true},
			policy:  Policy{CollaboratorsMayMint: true},
			allow:   []Capability{CapCreateObservation, CapMintInvites},
			deny:    []Capability{CapRevokeAnyInvite, CapMintAnyRole, CapManageProfiles},
		},
		{
			name:    "admin",
			profile: &models.Profile{Role: models.RoleAdmin, IsActive: true},
			allow:   []Capability{CapCreateObservation, CapMintInvites, CapMintAnyRole, CapRevokeAnyInvite, CapManageProfiles},
		},
		{
			name:    "inactive admin is read only",
			profile: &models.Profile{Role: models.RoleAdmin, IsActive: false},
			allow:   []Capability{CapReadPublic},
			deny:    []Capability{CapCreateObservation, CapMintInvites, CapRevokeAnyInvite},
		},
		{
			name:    "unknown role fails closed",
			profile: &models.Profile{Role: models.Role("superuser"), IsActive: true},
			allow:   []Capability{CapReadPublic},
			deny:    []Capability{CapCreateObservation, CapMintInvites},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := Capabilities(tt.profile, tt.policy)
			for _, c := range tt.allow {
				require.True(t, set.Has(c), "expected %s", c)
			}
			for _, c := range tt.deny {
				require.False(t, set.Has(c), "unexpected %s", c)
			}
		})
	}
}

func TestGateReevaluatesEveryCall(t *testing.T) {
	id := uuid.New()
	store := &fakeProfiles{byID: map[uuid.UUID]*models.Profile{
		id: {ID: id, Role: models.RoleUser, IsActive: true},
	}}
	gate := NewGate(store, Policy{}, nil)
	ctx := context.Background()

	ok, err := gate.Allow(ctx, id, CapCreateObservation)
	require.NoError(t, err)
	require.False(t, ok)

	store.byID[id].Role = models.RoleCollaborator

	ok, err = gate.Allow(ctx, id, CapCreateObservation)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, store.hits)
}

func TestGateMissingProfileFailsClosed(t *testing.T) {
	gate := NewGate(&fakeProfiles{byID: map[uuid.UUID]*models.Profile{}}, Policy{}, nil)

	d, err := gate.Evaluate(context.Background(), uuid.New())
	require.NoError(t, err)
	require.Nil(t, d.Profile)
	require.False(t, d.Allows(CapCreateObservation))
	require.True(t, d.Allows(CapReadPublic))
}

func TestGateStoreErrorDenies(t *testing.T) {
	gate := NewGate(&fakeProfiles{err: errors.New("connection refused")}, Policy{}, nil)

	ok, err := gate.Allow(context.Background(), uuid.New(), CapCreateObservation)
	require.Error(t, err)
	require.False(t, ok)
}

func TestGateNilIDSkipsStore(t *testing.T) {
	store := &fakeProfiles{}
	gate := NewGate(store, Policy{}, nil)

	d, err := gate.Evaluate(context.Background(), uuid.Nil)
	require.NoError(t, err)
	require.Equal(t, []Capability{CapReadPublic}, d.Capabilities.List())
	require.Zero(t, store.hits)
}
