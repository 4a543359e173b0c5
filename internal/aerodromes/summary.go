package aerodromes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aerodrome-observer/backend/internal/models"
)

// MaxSummaryNotams caps the NOTAMs returned in a summary.
const MaxSummaryNotams = 5

// Store reads aerodrome rows and NOTAMs.
type Store interface {
	GetByICAO(ctx context.Context, icao string) (*models.Aerodrome, error)
	ActiveNotams(ctx context.Context, aerodromeID uuid.UUID, now time.Time, limit int) ([]models.Notam, error)
}

// LatestObservations returns the newest public observation of an aerodrome, or nil.
type LatestObservations interface {
	LatestPublic(ctx context.Context, aerodromeID uuid.UUID) (*models.Observation, error)
}

// Cache is a JSON key/value cache with TTL (pkg/redis.Client).
type Cache interface {
	GetJSON(ctx context.Context, key string, dst interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// SummaryKey is the cache key of an aerodrome summary.
func SummaryKey(icao string) string { return "summary:" + icao }

// Summaries builds and caches aerodrome summaries.
type Summaries struct {
	store  Store
	latest LatestObservations
	cache  Cache
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewSummaries creates a summary builder. cache may be nil; ttl <= 0 disables caching.
func NewSummaries(store Store, latest LatestObservations, cache Cache, ttl time.Duration, logger *zap.Logger) *Summaries {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summaries{store: store, latest: latest, cache: cache, ttl: ttl, now: time.Now, logger: logger}
}

func (s *Summaries) caching() bool { return s.cache != nil && s.ttl > 0 }

// Get returns the summary for a normalised ICAO code. Cache failures fall through to the store.
func (s *Summaries) Get(ctx context.Context, icao string) (*models.AerodromeSummary, error) {
	key := SummaryKey(icao)
	if s.caching() {
		var cached models.AerodromeSummary
		hit, err := s.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			s.logger.Warn("summary cache read failed", zap.String("icao", icao), zap.Error(err))
		}
		if hit {
			return &cached, nil
		}
	}

	a, err := s.store.GetByICAO(ctx, icao)
	if err != nil {
		return nil, err
	}
	now := s.now()
	notams, err := s.store.ActiveNotams(ctx, a.ID, now, MaxSummaryNotams)
	if err != nil {
		return nil, fmt.Errorf("summary notams: %w", err)
	}
	summary := &models.AerodromeSummary{Aerodrome: *a, Notams: notams, FetchedAt: now.UTC()}
	if s.latest != nil {
		obs, err := s.latest.LatestPublic(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("summary latest observation: %w", err)
		}
		summary.LatestObservation = obs
	}

	if s.caching() {
		if err := s.cache.SetJSON(ctx, key, summary, s.ttl); err != nil {
			s.logger.Warn("summary cache write failed", zap.String("icao", icao), zap.Error(err))
		}
	}
	return summary, nil
}

// Invalidate drops the cached summary for icao.
func (s *Summaries) Invalidate(ctx context.Context, icao string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, SummaryKey(icao)); err != nil {
		s.logger.Warn("summary cache invalidation failed", zap.String("icao", icao), zap.Error(err))
	}
}
