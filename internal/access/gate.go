// Package access derives what a profile may do from its role and active flag.
package access

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aerodrome-observer/backend/internal/models"
)

// Capability is a single permitted action.
type Capability string

const (
	CapReadPublic        Capability = "read_public"
	CapReadRestricted    Capability = "read_restricted"
	CapCreateObservation Capability = "create_observation"
	CapMintInvites       Capability = "mint_invites"
	CapMintAnyRole       Capability = "mint_any_role"
	CapRevokeAnyInvite   Capability = "revoke_any_invite"
	CapManageProfiles    Capability = "manage_profiles"
)

// ErrProfileNotFound is returned by a ProfileReader when no profile exists.
var ErrProfileNotFound = errors.New("profile not found")

// Policy holds the configurable policy points.
type Policy struct {
	// CollaboratorsMayMint lets active collaborators mint collaborator invites.
	CollaboratorsMayMint bool
}

// CapabilitySet is the set of capabilities for one evaluation.
type CapabilitySet map[Capability]struct{}

// Has reports whether c is in the set.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// List returns the capabilities sorted by name.
func (s CapabilitySet) List() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func newSet(caps ...Capability) CapabilitySet {
	s := make(CapabilitySet, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

// Capabilities is a pure function of the profile's role and active flag.
// Missing profiles, inactive profiles and unknown roles get read-only access.
func Capabilities(p *models.Profile, policy Policy) CapabilitySet {
	if p == nil || !p.IsActive {
		return newSet(CapReadPublic)
	}
	switch p.Role {
	case models.RoleUser:
		return newSet(CapReadPublic)
	case models.RoleCollaborator:
		s := newSet(CapReadPublic, CapReadRestricted, CapCreateObservation)
		if policy.CollaboratorsMayMint {
			s[CapMintInvites] = struct{}{}
		}
		return s
	case models.RoleAdmin:
		return newSet(CapReadPublic, CapReadRestricted, CapCreateObservation,
			CapMintInvites, CapMintAnyRole, CapRevokeAnyInvite, CapManageProfiles)
	}
	return newSet(CapReadPublic)
}

// ProfileReader loads a profile by id. Implementations return ErrProfileNotFound
// (possibly wrapped) when it does not exist.
type ProfileReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

// Decision is the result of one gate evaluation.
type Decision struct {
	Profile      *models.Profile
	Capabilities CapabilitySet
}

// Allows reports whether the decision includes c.
func (d Decision) Allows(c Capability) bool { return d.Capabilities.Has(c) }

// Gate evaluates capabilities against the current profile row on every call.
type Gate struct {
	profiles ProfileReader
	policy   Policy
	logger   *zap.Logger
}

// NewGate creates a gate.
func NewGate(profiles ProfileReader, policy Policy, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{profiles: profiles, policy: policy, logger: logger}
}

// Policy returns the gate's policy.
func (g *Gate) Policy() Policy { return g.policy }

// Evaluate loads the profile and derives its capability set. A nil id or a missing
// profile yields a read-only decision without error; store failures are returned.
func (g *Gate) Evaluate(ctx context.Context, profileID uuid.UUID) (Decision, error) {
	if profileID == uuid.Nil {
		return Decision{Capabilities: Capabilities(nil, g.policy)}, nil
	}
	p, err := g.profiles.GetByID(ctx, profileID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return Decision{Capabilities: Capabilities(nil, g.policy)}, nil
		}
		g.logger.Error("load profile for authorization", zap.Error(err), zap.String("profile_id", profileID.String()))
		return Decision{Capabilities: Capabilities(nil, g.policy)}, fmt.Errorf("load profile: %w", err)
	}
	return Decision{Profile: p, Capabilities: Capabilities(p, g.policy)}, nil
}

// Allow is a shorthand for Evaluate followed by Allows.
func (g *Gate) Allow(ctx context.Context, profileID uuid.UUID, c Capability) (bool, error) {
	d, err := g.Evaluate(ctx, profileID)
	if err != nil {
		return false, err
	}
	return d.Allows(c), nil
}
