package profiles

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aerodrome-observer/backend/internal/access"
	"github.com/aerodrome-observer/backend/internal/models"
)

const profileColumns = `id, role, is_active, COALESCE(display_name,''), COALESCE(avatar_url,''),
	COALESCE(contact_email,''), COALESCE(contact_phone,''), COALESCE(organization,''), COALESCE(notes,''),
	created_at, updated_at`

// Repository handles profile persistence. It never writes role; elevation
// happens only inside invite consumption.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a profiles repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanProfile(row pgx.Row) (*models.Profile, error) {
	var p models.Profile
	var role string
	err := row.Scan(&p.ID, &role, &p.IsActive, &p.DisplayName, &p.AvatarURL,
		&p.ContactEmail, &p.ContactPhone, &p.Organization, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, access.ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Role = models.Role(role)
	return &p, nil
}

// Ensure creates the profile with the default role if it does not exist and returns it.
// An existing profile is returned unchanged.
func (r *Repository) Ensure(ctx context.Context, id uuid.UUID, email string) (*models.Profile, error) {
	_, err := r.pool.Exec(ctx, `INSERT INTO profiles (id, contact_email) VALUES ($1, NULLIF($2,''))
		ON CONFLICT (id) DO NOTHING`, id, email)
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// GetByID returns a profile or access.ErrProfileNotFound.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	return scanProfile(r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
}

// UpdateContact replaces the contact metadata. Empty strings are stored as NULL.
func (r *Repository) UpdateContact(ctx context.Context, id uuid.UUID, u models.ContactUpdate) (*models.Profile, error) {
	const q = `UPDATE profiles SET
		display_name = NULLIF($2,''), avatar_url = NULLIF($3,''), contact_email = NULLIF($4,''),
		contact_phone = NULLIF($5,''), organization = NULLIF($6,''), notes = NULLIF($7,''),
		updated_at = NOW()
		WHERE id = $1
		RETURNING ` + profileColumns
	return scanProfile(r.pool.QueryRow(ctx, q, id,
		u.DisplayName, u.AvatarURL, u.ContactEmail, u.ContactPhone, u.Organization, u.Notes))
}

// SetActive toggles is_active.
func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.Profile, error) {
	return scanProfile(r.pool.QueryRow(ctx, `UPDATE profiles SET is_active = $2, updated_at = NOW()
		WHERE id = $1 RETURNING `+profileColumns, id, active))
}

// List returns profiles, highest role first, then newest.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]models.Profile, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+profileColumns+` FROM profiles
		ORDER BY role_rank(role) DESC, created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}
