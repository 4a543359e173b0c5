package invites

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aerodrome-observer/backend/internal/models"
)

const (
	inviteColumns     = `id, token, role_to_grant, created_by, expires_at, max_uses, uses, revoked_at, COALESCE(note,''), created_at`
	redemptionColumns = `id, invite_id, profile_id, granted_role, resulting_role, COALESCE(idempotency_key,''), created_at`

	listLimit = 500

	uniqueViolation = "23505"
)

// Repository is the PostgreSQL invite ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an invites repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanInvite(row pgx.Row) (*models.Invite, error) {
	var inv models.Invite
	var role string
	err := row.Scan(&inv.ID, &inv.Token, &role, &inv.CreatedBy, &inv.ExpiresAt, &inv.MaxUses,
		&inv.Uses, &inv.RevokedAt, &inv.Note, &inv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	inv.RoleToGrant = models.Role(role)
	return &inv, nil
}

func scanRedemption(row pgx.Row) (*models.Redemption, error) {
	var r models.Redemption
	var granted, resulting string
	if err := row.Scan(&r.ID, &r.InviteID, &r.ProfileID, &granted, &resulting, &r.IdempotencyKey, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.GrantedRole = models.Role(granted)
	r.ResultingRole = models.Role(resulting)
	return &r, nil
}

// Create inserts a new invite with uses = 0. A token collision returns ErrTokenTaken.
func (r *Repository) Create(ctx context.Context, inv *models.Invite) error {
	const q = `INSERT INTO invites (id, token, role_to_grant, created_by, expires_at, max_uses, note)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, NULLIF($6,''))
		RETURNING id, uses, created_at`
	err := r.pool.QueryRow(ctx, q, inv.Token, string(inv.RoleToGrant), inv.CreatedBy, inv.ExpiresAt, inv.MaxUses, inv.Note).
		Scan(&inv.ID, &inv.Uses, &inv.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "invites_token_key" {
		return ErrTokenTaken
	}
	return err
}

// GetByToken returns an invite by exact token match.
func (r *Repository) GetByToken(ctx context.Context, token string) (*models.Invite, error) {
	return scanInvite(r.pool.QueryRow(ctx, `SELECT `+inviteColumns+` FROM invites WHERE token = $1`, token))
}

// GetByID returns an invite by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Invite, error) {
	return scanInvite(r.pool.QueryRow(ctx, `SELECT `+inviteColumns+` FROM invites WHERE id = $1`, id))
}

// List returns invites newest first, optionally only those created by one profile.
func (r *Repository) List(ctx context.Context, createdBy *uuid.UUID) ([]models.Invite, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if createdBy != nil {
		rows, err = r.pool.Query(ctx, `SELECT `+inviteColumns+` FROM invites WHERE created_by = $1 ORDER BY created_at DESC LIMIT $2`, *createdBy, listLimit)
	} else {
		rows, err = r.pool.Query(ctx, `SELECT `+inviteColumns+` FROM invites ORDER BY created_at DESC LIMIT $1`, listLimit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Invite{}
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *inv)
	}
	return list, rows.Err()
}

// ListRedemptions returns the redemptions of an invite, oldest first.
func (r *Repository) ListRedemptions(ctx context.Context, inviteID uuid.UUID) ([]models.Redemption, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+redemptionColumns+` FROM invite_redemptions WHERE invite_id = $1 ORDER BY created_at ASC`, inviteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Redemption{}
	for rows.Next() {
		red, err := scanRedemption(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *red)
	}
	return list, rows.Err()
}

// Consume locks the invite row, re-checks it, increments uses with a guarded
// update, elevates the consumer's profile and records the redemption, all in
// one transaction. Concurrent consumers of the same token queue on the row lock.
func (r *Repository) Consume(ctx context.Context, req ConsumeRequest) (ConsumeOutcome, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return ConsumeOutcome{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inv, err := scanInvite(tx.QueryRow(ctx, `SELECT `+inviteColumns+` FROM invites WHERE token = $1 FOR UPDATE`, req.Token))
	if errors.Is(err, ErrNotFound) {
		return ConsumeOutcome{Reason: models.ReasonNotFound}, nil
	}
	if err != nil {
		return ConsumeOutcome{}, fmt.Errorf("lock invite: %w", err)
	}

	if req.IdempotencyKey != "" {
		red, err := scanRedemption(tx.QueryRow(ctx, `SELECT `+redemptionColumns+` FROM invite_redemptions
			WHERE invite_id = $1 AND profile_id = $2 AND idempotency_key = $3`, inv.ID, req.ConsumerID, req.IdempotencyKey))
		if err == nil {
			return ConsumeOutcome{Invite: inv, Redemption: red, Replayed: true}, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return ConsumeOutcome{}, fmt.Errorf("lookup redemption: %w", err)
		}
	}

	if reason := inv.Check(req.Now); reason != models.ReasonNone {
		return ConsumeOutcome{Reason: reason, Invite: inv}, nil
	}

	tag, err := tx.Exec(ctx, `UPDATE invites SET uses = uses + 1
		WHERE id = $1
		AND revoked_at IS NULL
		AND (expires_at IS NULL OR expires_at >= $2)
		AND (max_uses IS NULL OR uses < max_uses)`, inv.ID, req.Now)
	if err != nil {
		return ConsumeOutcome{}, fmt.Errorf("increment uses: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ConsumeOutcome{Reason: models.ReasonAlreadyConsumedByRace, Invite: inv}, nil
	}
	inv.Uses++

	var resulting string
	err = tx.QueryRow(ctx, `INSERT INTO profiles (id, role) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET
			role = CASE WHEN role_rank(EXCLUDED.role) > role_rank(profiles.role) THEN EXCLUDED.role ELSE profiles.role END,
			updated_at = NOW()
		RETURNING role`, req.ConsumerID, string(inv.RoleToGrant)).Scan(&resulting)
	if err != nil {
		return ConsumeOutcome{}, fmt.Errorf("elevate profile: %w", err)
	}

	red := &models.Redemption{
		InviteID:       inv.ID,
		ProfileID:      req.ConsumerID,
		GrantedRole:    inv.RoleToGrant,
		ResultingRole:  models.Role(resulting),
		IdempotencyKey: req.IdempotencyKey,
	}
	err = tx.QueryRow(ctx, `INSERT INTO invite_redemptions (id, invite_id, profile_id, granted_role, resulting_role, idempotency_key)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, NULLIF($5,''))
		RETURNING id, created_at`,
		red.InviteID, red.ProfileID, string(red.GrantedRole), string(red.ResultingRole), red.IdempotencyKey).
		Scan(&red.ID, &red.CreatedAt)
	if err != nil {
		return ConsumeOutcome{}, fmt.Errorf("record redemption: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return ConsumeOutcome{}, fmt.Errorf("commit: %w", err)
	}
	return ConsumeOutcome{Invite: inv, Redemption: red}, nil
}

// Revoke sets revoked_at if it is not already set and returns the row.
func (r *Repository) Revoke(ctx context.Context, id uuid.UUID, at time.Time) (*models.Invite, error) {
	return scanInvite(r.pool.QueryRow(ctx, `UPDATE invites SET revoked_at = COALESCE(revoked_at, $2)
		WHERE id = $1 RETURNING `+inviteColumns, id, at))
}
