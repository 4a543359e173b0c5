// Package invites mints, validates, consumes and revokes invite tokens that
// elevate a profile's role.
package invites

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aerodrome-observer/backend/internal/access"
	"github.com/aerodrome-observer/backend/internal/models"
)

const (
	maxMintAttempts      = 3
	maxIdempotencyKeyLen = 255
	maxNoteLen           = 500
)

// Store is the persistence boundary for the invite ledger.
type Store interface {
	Create(ctx context.Context, inv *models.Invite) error
	GetByToken(ctx context.Context, token string) (*models.Invite, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Invite, error)
	List(ctx context.Context, createdBy *uuid.UUID) ([]models.Invite, error)
	ListRedemptions(ctx context.Context, inviteID uuid.UUID) ([]models.Redemption, error)
	// Consume must re-check the invite and increment uses in one atomic unit.
	Consume(ctx context.Context, req ConsumeRequest) (ConsumeOutcome, error)
	Revoke(ctx context.Context, id uuid.UUID, at time.Time) (*models.Invite, error)
}

// ConsumeRequest is what the service asks the store to apply atomically.
type ConsumeRequest struct {
	Token          string
	ConsumerID     uuid.UUID
	IdempotencyKey string
	Now            time.Time
}

// ConsumeOutcome is the store's answer. Reason is empty on success.
type ConsumeOutcome struct {
	Reason     models.Reason
	Invite     *models.Invite
	Redemption *models.Redemption
	// Replayed is set when the idempotency key matched an earlier redemption.
	Replayed bool
}

// MintParams are the inputs to Mint.
type MintParams struct {
	IssuerID    uuid.UUID
	RoleToGrant models.Role
	ExpiresAt   *time.Time
	MaxUses     *int
	Note        string
}

// Validation is the read-only answer for a token.
type Validation struct {
	Valid       bool          `json:"valid"`
	Reason      models.Reason `json:"reason,omitempty"`
	RoleToGrant models.Role   `json:"role_to_grant,omitempty"`
}

// ConsumeParams are the inputs to Consume.
type ConsumeParams struct {
	Token          string
	ConsumerID     uuid.UUID
	IdempotencyKey string
}

// ConsumeResult is the answer for a consumption attempt.
type ConsumeResult struct {
	OK            bool          `json:"ok"`
	GrantedRole   models.Role   `json:"granted_role,omitempty"`
	ResultingRole models.Role   `json:"resulting_role,omitempty"`
	Reason        models.Reason `json:"reason,omitempty"`
	Replayed      bool          `json:"replayed,omitempty"`
}

// Service implements the invite state machine.
type Service struct {
	store       Store
	gate        *access.Gate
	tokenLength int
	now         func() time.Time
	logger      *zap.Logger
}

// NewService creates an invite service. tokenLength below MinTokenLength is raised to it.
func NewService(store Store, gate *access.Gate, tokenLength int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tokenLength <= 0 {
		tokenLength = DefaultTokenLength
	}
	if tokenLength < MinTokenLength {
		tokenLength = MinTokenLength
	}
	return &Service{store: store, gate: gate, tokenLength: tokenLength, now: time.Now, logger: logger}
}

// SetClock replaces the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Mint issues a new invite on behalf of an issuer allowed to mint.
func (s *Service) Mint(ctx context.Context, p MintParams) (*models.Invite, error) {
	d, err := s.gate.Evaluate(ctx, p.IssuerID)
	if err != nil {
		return nil, storeUnavailable("evaluate issuer", err)
	}
	if d.Profile == nil || !d.Allows(access.CapMintInvites) {
		return nil, unauthorized("issuer cannot mint invites")
	}

	switch p.RoleToGrant {
	case models.RoleCollaborator:
	case models.RoleAdmin:
		if !d.Allows(access.CapMintAnyRole) {
			return nil, invalidArgument("only admins can grant admin")
		}
	default:
		return nil, invalidArgument("role_to_grant must be collaborator or admin")
	}

	now := s.now()
	if p.ExpiresAt != nil && !p.ExpiresAt.After(now) {
		return nil, invalidArgument("expires_at must be in the future")
	}
	if p.MaxUses != nil && *p.MaxUses <= 0 {
		return nil, invalidArgument("max_uses must be a positive integer")
	}
	note := strings.TrimSpace(p.Note)
	if len(note) > maxNoteLen {
		return nil, invalidArgument("note is too long")
	}

	for attempt := 0; attempt < maxMintAttempts; attempt++ {
		token, err := GenerateToken(s.tokenLength)
		if err != nil {
			return nil, storeUnavailable("generate token", err)
		}
		inv := &models.Invite{
			Token:       token,
			RoleToGrant: p.RoleToGrant,
			CreatedBy:   p.IssuerID,
			ExpiresAt:   p.ExpiresAt,
			MaxUses:     p.MaxUses,
			Note:        note,
		}
		err = s.store.Create(ctx, inv)
		if errors.Is(err, ErrTokenTaken) {
			s.logger.Warn("invite token collision, regenerating", zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return nil, storeUnavailable("create invite", err)
		}
		s.logger.Info("invite minted",
			zap.String("invite_id", inv.ID.String()),
			zap.String("issuer_id", p.IssuerID.String()),
			zap.String("role_to_grant", string(inv.RoleToGrant)),
		)
		return inv, nil
	}
	return nil, storeUnavailable("create invite", errors.New("could not allocate a unique token"))
}

// Validate checks a token without side effects.
func (s *Service) Validate(ctx context.Context, token string) (Validation, error) {
	token = strings.TrimSpace(token)
	if token == "" || len(token) > MaxTokenLength {
		return Validation{Reason: models.ReasonNotFound}, nil
	}
	inv, err := s.store.GetByToken(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return Validation{Reason: models.ReasonNotFound}, nil
	}
	if err != nil {
		return Validation{Reason: models.ReasonStoreUnavailable}, storeUnavailable("get invite", err)
	}
	if reason := inv.Check(s.now()); reason != models.ReasonNone {
		return Validation{Reason: reason}, nil
	}
	return Validation{Valid: true, RoleToGrant: inv.RoleToGrant}, nil
}

// Consume redeems a token for the consumer and elevates their role. The check
// and the increment happen atomically in the store. Only StoreUnavailable is
// returned as an error; a blind retry of a failed Consume may double-consume
// unless an idempotency key was supplied.
func (s *Service) Consume(ctx context.Context, p ConsumeParams) (ConsumeResult, error) {
	if p.ConsumerID == uuid.Nil {
		return ConsumeResult{Reason: models.ReasonUnauthorized}, nil
	}
	token := strings.TrimSpace(p.Token)
	if token == "" || len(token) > MaxTokenLength {
		return ConsumeResult{Reason: models.ReasonNotFound}, nil
	}
	key := strings.TrimSpace(p.IdempotencyKey)
	if len(key) > maxIdempotencyKeyLen {
		return ConsumeResult{Reason: models.ReasonInvalidArgument}, nil
	}

	out, err := s.store.Consume(ctx, ConsumeRequest{
		Token:          token,
		ConsumerID:     p.ConsumerID,
		IdempotencyKey: key,
		Now:            s.now(),
	})
	if err != nil {
		s.logger.Error("consume invite failed", zap.Error(err), zap.String("consumer_id", p.ConsumerID.String()))
		return ConsumeResult{Reason: models.ReasonStoreUnavailable}, storeUnavailable("consume invite", err)
	}
	if out.Reason != models.ReasonNone {
		s.logger.Info("invite consumption rejected",
			zap.String("consumer_id", p.ConsumerID.String()),
			zap.String("reason", string(out.Reason)),
		)
		return ConsumeResult{Reason: out.Reason}, nil
	}

	res := ConsumeResult{OK: true, Replayed: out.Replayed}
	if out.Redemption != nil {
		res.GrantedRole = out.Redemption.GrantedRole
		res.ResultingRole = out.Redemption.ResultingRole
	}
	fields := []zap.Field{
		zap.String("consumer_id", p.ConsumerID.String()),
		zap.String("granted_role", string(res.GrantedRole)),
		zap.String("resulting_role", string(res.ResultingRole)),
		zap.Bool("replayed", out.Replayed),
	}
	if out.Invite != nil {
		fields = append(fields, zap.String("invite_id", out.Invite.ID.String()), zap.Int("uses", out.Invite.Uses))
	}
	s.logger.Info("invite consumed", fields...)
	return res, nil
}

// Revoke permanently disables an invite. The issuer or an admin may revoke;
// revoking twice is a no-op success.
func (s *Service) Revoke(ctx context.Context, inviteID, revokerID uuid.UUID) (*models.Invite, error) {
	d, err := s.gate.Evaluate(ctx, revokerID)
	if err != nil {
		return nil, storeUnavailable("evaluate revoker", err)
	}
	inv, err := s.managedInvite(ctx, d, inviteID, revokerID, "only the issuer or an admin can revoke")
	if err != nil {
		return nil, err
	}
	if inv.IsRevoked() {
		return inv, nil
	}

	inv, err = s.store.Revoke(ctx, inviteID, s.now())
	if err != nil {
		return nil, storeUnavailable("revoke invite", err)
	}
	s.logger.Info("invite revoked", zap.String("invite_id", inviteID.String()), zap.String("revoker_id", revokerID.String()))
	return inv, nil
}

// List returns every invite for admins and the viewer's own invites for other minters.
func (s *Service) List(ctx context.Context, viewerID uuid.UUID) ([]models.Invite, error) {
	d, err := s.gate.Evaluate(ctx, viewerID)
	if err != nil {
		return nil, storeUnavailable("evaluate viewer", err)
	}
	var filter *uuid.UUID
	switch {
	case d.Allows(access.CapRevokeAnyInvite):
	case d.Allows(access.CapMintInvites):
		filter = &viewerID
	default:
		return nil, unauthorized("viewer cannot list invites")
	}
	list, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, storeUnavailable("list invites", err)
	}
	return list, nil
}

// Redemptions returns the audit trail of an invite to its issuer or an admin.
func (s *Service) Redemptions(ctx context.Context, inviteID, viewerID uuid.UUID) ([]models.Redemption, error) {
	d, err := s.gate.Evaluate(ctx, viewerID)
	if err != nil {
		return nil, storeUnavailable("evaluate viewer", err)
	}
	if _, err := s.managedInvite(ctx, d, inviteID, viewerID, "only the issuer or an admin can view redemptions"); err != nil {
		return nil, err
	}
	list, err := s.store.ListRedemptions(ctx, inviteID)
	if err != nil {
		return nil, storeUnavailable("list redemptions", err)
	}
	return list, nil
}

// managedInvite loads an invite the caller may manage. Callers without
// CapRevokeAnyInvite get Unauthorized for unknown and foreign invites alike.
func (s *Service) managedInvite(ctx context.Context, d access.Decision, inviteID, callerID uuid.UUID, denied string) (*models.Invite, error) {
	admin := d.Allows(access.CapRevokeAnyInvite)
	if !admin && (d.Profile == nil || !d.Profile.IsActive) {
		return nil, unauthorized(denied)
	}
	inv, err := s.store.GetByID(ctx, inviteID)
	if errors.Is(err, ErrNotFound) {
		if admin {
			return nil, &Error{Reason: models.ReasonNotFound}
		}
		return nil, unauthorized(denied)
	}
	if err != nil {
		return nil, storeUnavailable("get invite", err)
	}
	if !admin && inv.CreatedBy != callerID {
		return nil, unauthorized(denied)
	}
	return inv, nil
}
