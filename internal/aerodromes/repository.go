package aerodromes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aerodrome-observer/backend/internal/models"
)

// ErrNotFound is returned when no aerodrome has the requested ICAO code.
var ErrNotFound = errors.New("aerodrome not found")

const aerodromeColumns = `id, icao, name, COALESCE(city, ''), COALESCE(uf, ''), COALESCE(metar, ''),
	COALESCE(taf, ''), COALESCE(flight_category, ''), updated_at`

// Repository handles aerodrome and NOTAM persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new aerodrome repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanAerodrome(row pgx.Row) (*models.Aerodrome, error) {
	var a models.Aerodrome
	err := row.Scan(&a.ID, &a.ICAO, &a.Name, &a.City, &a.UF, &a.METAR, &a.TAF, &a.FlightCategory, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// GetByICAO returns the aerodrome with the given (normalised) ICAO code.
func (r *Repository) GetByICAO(ctx context.Context, icao string) (*models.Aerodrome, error) {
	a, err := scanAerodrome(r.pool.QueryRow(ctx, `SELECT `+aerodromeColumns+` FROM aerodromes WHERE icao = $1`, icao))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get aerodrome %s: %w", icao, err)
	}
	return a, err
}

// List returns all aerodromes ordered by ICAO code.
func (r *Repository) List(ctx context.Context) ([]models.Aerodrome, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+aerodromeColumns+` FROM aerodromes ORDER BY icao`)
	if err != nil {
		return nil, fmt.Errorf("list aerodromes: %w", err)
	}
	defer rows.Close()
	var list []models.Aerodrome
	for rows.Next() {
		a, err := scanAerodrome(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}

// ActiveNotams returns NOTAMs in force at now, most severe first.
func (r *Repository) ActiveNotams(ctx context.Context, aerodromeID uuid.UUID, now time.Time, limit int) ([]models.Notam, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, aerodrome_id, code, severity, title, COALESCE(description, ''), starts_at, ends_at
		FROM notams
		WHERE aerodrome_id = $1 AND starts_at <= $2 AND (ends_at IS NULL OR ends_at > $2)
		ORDER BY CASE severity WHEN 'critical' THEN 0 WHEN 'warning' THEN 1 ELSE 2 END, starts_at DESC
		LIMIT $3`, aerodromeID, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list notams: %w", err)
	}
	defer rows.Close()
	list := []models.Notam{}
	for rows.Next() {
		var n models.Notam
		if err := rows.Scan(&n.ID, &n.AerodromeID, &n.Code, &n.Severity, &n.Title, &n.Description, &n.StartsAt, &n.EndsAt); err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, rows.Err()
}
