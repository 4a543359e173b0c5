package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role represents a profile's permission level.
type Role string

const (
	RoleUser         Role = "user"
	RoleCollaborator Role = "collaborator"
	RoleAdmin        Role = "admin"
)

// Rank orders roles in the elevation lattice user < collaborator < admin.
// Unknown roles rank 0, below user.
func (r Role) Rank() int {
	switch r {
	case RoleUser:
		return 1
	case RoleCollaborator:
		return 2
	case RoleAdmin:
		return 3
	}
	return 0
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool { return r.Rank() > 0 }

// AtLeast reports whether r is at or above other in the lattice.
func (r Role) AtLeast(other Role) bool {
	return r.Valid() && r.Rank() >= other.Rank()
}

// ParseRole parses a role name (case-insensitive). ok is false for unknown names.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

// HigherRole returns whichever of a and b ranks higher. Used for elevation so an
// existing role is never lowered.
func HigherRole(a, b Role) Role {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Profile is the per-identity row holding role and contact metadata.
type Profile struct {
	ID           uuid.UUID `json:"id"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	DisplayName  string    `json:"display_name"`
	AvatarURL    string    `json:"avatar_url"`
	ContactEmail string    `json:"contact_email"`
	ContactPhone string    `json:"contact_phone"`
	Organization string    `json:"organization"`
	Notes        string    `json:"notes"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ContactUpdate holds the self-service editable profile fields.
type ContactUpdate struct {
	DisplayName  string `json:"display_name"`
	AvatarURL    string `json:"avatar_url"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone"`
	Organization string `json:"organization"`
	Notes        string `json:"notes"`
}

// Trim strips surrounding whitespace from every field.
func (u *ContactUpdate) Trim() {
	u.DisplayName = strings.TrimSpace(u.DisplayName)
	u.AvatarURL = strings.TrimSpace(u.AvatarURL)
	u.ContactEmail = strings.TrimSpace(u.ContactEmail)
	u.ContactPhone = strings.TrimSpace(u.ContactPhone)
	u.Organization = strings.TrimSpace(u.Organization)
	u.Notes = strings.TrimSpace(u.Notes)
}
