package observations

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aerodrome-observer/backend/internal/models"
)

var (
	// ErrNotFound is returned when an observation does not exist.
	ErrNotFound = errors.New("observation not found")
	// ErrMediaNotFound is returned when a media row does not exist.
	ErrMediaNotFound = errors.New("media not found")
)

const observationColumns = `o.id, o.aerodrome_id, a.icao, o.created_by, COALESCE(p.display_name, ''), COALESCE(p.role, ''),
	o.type, COALESCE(o.caption, ''), o.privacy, o.status, o.event_time, o.latitude, o.longitude, o.created_at`

const observationFrom = `FROM observations o
	JOIN aerodromes a ON a.id = o.aerodrome_id
	LEFT JOIN profiles p ON p.id = o.created_by`

const mediaColumns = `id, observation_id, storage_bucket, storage_path, mime_type, bytes, status, created_at`

// FeedQuery selects a page of an aerodrome's feed.
type FeedQuery struct {
	AerodromeID       uuid.UUID
	IncludeRestricted bool
	Limit             int
	Offset            int
}

// Repository handles observation and media persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new observation repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanObservation(row pgx.Row) (*models.Observation, error) {
	var o models.Observation
	var role string
	err := row.Scan(&o.ID, &o.AerodromeID, &o.ICAO, &o.CreatedBy, &o.AuthorName, &role,
		&o.Type, &o.Caption, &o.Privacy, &o.Status, &o.EventTime, &o.Latitude, &o.Longitude, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	o.AuthorRole = models.Role(role)
	return &o, nil
}

func scanMedia(row pgx.Row) (*models.ObservationMedia, error) {
	var m models.ObservationMedia
	err := row.Scan(&m.ID, &m.ObservationID, &m.StorageBucket, &m.StoragePath, &m.MimeType, &m.Bytes, &m.Status, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMediaNotFound
		}
		return nil, err
	}
	return &m, nil
}

// Create inserts an observation and fills its id, status and created_at.
func (r *Repository) Create(ctx context.Context, o *models.Observation) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO observations (aerodrome_id, created_by, type, caption, privacy, event_time, latitude, longitude)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8)
		RETURNING id, status, created_at`,
		o.AerodromeID, o.CreatedBy, string(o.Type), o.Caption, string(o.Privacy), o.EventTime, o.Latitude, o.Longitude,
	).Scan(&o.ID, &o.Status, &o.CreatedAt)
	if err != nil {
		return fmt.Errorf("create observation: %w", err)
	}
	return nil
}

// GetByID returns an observation with its aerodrome ICAO and author.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Observation, error) {
	o, err := scanObservation(r.pool.QueryRow(ctx, `SELECT `+observationColumns+` `+observationFrom+` WHERE o.id = $1`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get observation: %w", err)
	}
	return o, err
}

// Feed returns published observations of an aerodrome, newest first. Collaborator-only
// observations are included only when q.IncludeRestricted is set.
func (r *Repository) Feed(ctx context.Context, q FeedQuery) ([]models.Observation, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+observationColumns+` `+observationFrom+`
		WHERE o.aerodrome_id = $1 AND o.status = 'published' AND ($2 OR o.privacy = 'public')
		ORDER BY o.created_at DESC, o.id
		LIMIT $3 OFFSET $4`, q.AerodromeID, q.IncludeRestricted, q.Limit, q.Offset)
	if err != nil {
		return nil, fmt.Errorf("feed: %w", err)
	}
	defer rows.Close()
	list := []models.Observation{}
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *o)
	}
	return list, rows.Err()
}

// LatestPublic returns the newest published public observation of an aerodrome, or nil.
func (r *Repository) LatestPublic(ctx context.Context, aerodromeID uuid.UUID) (*models.Observation, error) {
	o, err := scanObservation(r.pool.QueryRow(ctx, `SELECT `+observationColumns+` `+observationFrom+`
		WHERE o.aerodrome_id = $1 AND o.status = 'published' AND o.privacy = 'public'
		ORDER BY o.created_at DESC LIMIT 1`, aerodromeID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest observation: %w", err)
	}
	media, err := r.ListMedia(ctx, []uuid.UUID{o.ID}, models.MediaReady)
	if err != nil {
		return nil, err
	}
	o.Media = media[o.ID]
	return o, nil
}

// CreateMedia inserts a media row and fills its id and created_at.
func (r *Repository) CreateMedia(ctx context.Context, m *models.ObservationMedia) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO observation_media (id, observation_id, storage_bucket, storage_path, mime_type, bytes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		m.ID, m.ObservationID, m.StorageBucket, m.StoragePath, m.MimeType, m.Bytes, m.Status,
	).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("create media: %w", err)
	}
	return nil
}

// GetMedia returns a media row by id.
func (r *Repository) GetMedia(ctx context.Context, id uuid.UUID) (*models.ObservationMedia, error) {
	m, err := scanMedia(r.pool.QueryRow(ctx, `SELECT `+mediaColumns+` FROM observation_media WHERE id = $1`, id))
	if err != nil && !errors.Is(err, ErrMediaNotFound) {
		return nil, fmt.Errorf("get media: %w", err)
	}
	return m, err
}

// MarkMediaReady records the verified size and type of an uploaded object.
func (r *Repository) MarkMediaReady(ctx context.Context, id uuid.UUID, size int64, mimeType string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE observation_media SET status = 'ready', bytes = $2, mime_type = $3 WHERE id = $1`, id, size, mimeType)
	if err != nil {
		return fmt.Errorf("mark media ready: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMediaNotFound
	}
	return nil
}

// MarkMediaFailed flags a media row whose object never arrived.
func (r *Repository) MarkMediaFailed(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE observation_media SET status = 'failed' WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("mark media failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMediaNotFound
	}
	return nil
}

// ListMedia returns media of the given observations with status, grouped by observation.
func (r *Repository) ListMedia(ctx context.Context, observationIDs []uuid.UUID, status string) (map[uuid.UUID][]models.ObservationMedia, error) {
	out := make(map[uuid.UUID][]models.ObservationMedia, len(observationIDs))
	if len(observationIDs) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+mediaColumns+` FROM observation_media
		WHERE observation_id = ANY($1) AND status = $2
		ORDER BY created_at`, observationIDs, status)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		out[m.ObservationID] = append(out[m.ObservationID], *m)
	}
	return out, rows.Err()
}
