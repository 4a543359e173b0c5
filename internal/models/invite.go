package models

import (
	"time"

	"github.com/google/uuid"
)

// Reason is the outcome taxonomy for invite operations. The empty Reason means success.
type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonNotFound              Reason = "not_found"
	ReasonRevoked               Reason = "revoked"
	ReasonExpired               Reason = "expired"
	ReasonExhaustedUses         Reason = "exhausted_uses"
	ReasonAlreadyConsumedByRace Reason = "already_consumed_by_race"
	ReasonUnauthorized          Reason = "unauthorized"
	ReasonInvalidArgument       Reason = "invalid_argument"
	ReasonStoreUnavailable      Reason = "store_unavailable"
)

// Message returns the user-facing copy for a reason.
func (r Reason) Message() string {
	switch r {
	case ReasonNone:
		return "invite is valid"
	case ReasonNotFound:
		return "this invite code does not exist"
	case ReasonRevoked:
		return "this invite has been revoked"
	case ReasonExpired:
		return "this invite has expired"
	case ReasonExhaustedUses:
		return "this invite has already been fully used"
	case ReasonAlreadyConsumedByRace:
		return "this invite was just used by someone else, please ask for a new one"
	case ReasonUnauthorized:
		return "you are not allowed to do this"
	case ReasonInvalidArgument:
		return "the request is invalid"
	case ReasonStoreUnavailable:
		return "the service is temporarily unavailable, please try again"
	}
	return "unknown invite error"
}

// Invite is a capability to elevate a profile's role.
type Invite struct {
	ID          uuid.UUID  `json:"id"`
	Token       string     `json:"token"`
	RoleToGrant Role       `json:"role_to_grant"`
	CreatedBy   uuid.UUID  `json:"created_by"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	MaxUses     *int       `json:"max_uses,omitempty"` // nil = unlimited
	Uses        int        `json:"uses"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	Note        string     `json:"note,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IsRevoked reports whether the invite has been revoked.
func (i *Invite) IsRevoked() bool { return i.RevokedAt != nil }

// IsExpired reports whether now is past the invite's expiry.
func (i *Invite) IsExpired(now time.Time) bool {
	return i.ExpiresAt != nil && now.After(*i.ExpiresAt)
}

// IsExhausted reports whether a use limit is set and reached.
func (i *Invite) IsExhausted() bool {
	return i.MaxUses != nil && i.Uses >= *i.MaxUses
}

// Check evaluates the usability predicate at now. Revocation wins over expiry,
// which wins over exhaustion.
func (i *Invite) Check(now time.Time) Reason {
	switch {
	case i.IsRevoked():
		return ReasonRevoked
	case i.IsExpired(now):
		return ReasonExpired
	case i.IsExhausted():
		return ReasonExhaustedUses
	}
	return ReasonNone
}

// Redemption records one successful consumption of an invite by a profile.
type Redemption struct {
	ID             uuid.UUID `json:"id"`
	InviteID       uuid.UUID `json:"invite_id"`
	ProfileID      uuid.UUID `json:"profile_id"`
	GrantedRole    Role      `json:"granted_role"`
	ResultingRole  Role      `json:"resulting_role"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
