package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRoleLattice(t *testing.T) {
	require.True(t, RoleAdmin.AtLeast(RoleCollaborator))
	require.True(t, RoleCollaborator.AtLeast(RoleCollaborator))
	require.False(t, RoleUser.AtLeast(RoleCollaborator))
	require.False(t, Role("owner").AtLeast(RoleUser))

	require.Equal(t, RoleAdmin, HigherRole(RoleAdmin, RoleCollaborator))
	require.Equal(t, RoleCollaborator, HigherRole(RoleUser, RoleCollaborator))
	require.Equal(t, RoleUser, HigherRole(RoleUser, Role("bogus")))
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole(" Collaborator ")
	require.True(t, ok)
	require.Equal(t, RoleCollaborator, r)

	_, ok = ParseRole("editor")
	require.False(t, ok)
}

func TestInviteCheck(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Hour)
	one := 1

	tests := []struct {
		name   string
		invite Invite
		want   Reason
	}{
		{"usable", Invite{}, ReasonNone},
		{"unexpired limited", Invite{ExpiresAt: &future, MaxUses: &one}, ReasonNone},
		{"expired", Invite{ExpiresAt: &past}, ReasonExpired},
		{"exhausted", Invite{MaxUses: &one, Uses: 1}, ReasonExhaustedUses},
		{"revoked beats everything", Invite{RevokedAt: &past, ExpiresAt: &past, MaxUses: &one, Uses: 1}, ReasonRevoked},
		{"expired beats exhausted", Invite{ExpiresAt: &past, MaxUses: &one, Uses: 1}, ReasonExpired},
		{"expiry boundary is inclusive", Invite{ExpiresAt: &now}, ReasonNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.invite.Check(now))
		})
	}
}

func TestReasonMessagesAreDistinct(t *testing.T) {
	reasons := []Reason{
		ReasonNotFound, ReasonRevoked, ReasonExpired, ReasonExhaustedUses,
		ReasonAlreadyConsumedByRace, ReasonUnauthorized, ReasonInvalidArgument, ReasonStoreUnavailable,
	}
	seen := make(map[string]Reason)
	for _, r := range reasons {
		msg := r.Message()
		prev, dup := seen[msg]
		require.False(t, dup, "%s and %s share a message", r, prev)
		seen[msg] = r
	}
}
