//go:build integration

package invites

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/aerodrome-observer/backend/internal/models"
	"github.com/aerodrome-observer/backend/pkg/database"
)

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.Migrate(ctx, pool))
	return pool
}

func seedProfile(t *testing.T, pool *pgxpool.Pool, role models.Role) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(), `INSERT INTO profiles (id, role) VALUES ($1, $2)`, id, string(role))
	require.NoError(t, err)
	return id
}

func TestRepositoryConcurrentConsume(t *testing.T) {
	pool := newTestPool(t)
	repo := NewRepository(pool)
	ctx := context.Background()
	admin := seedProfile(t, pool, models.RoleAdmin)

	tok, err := GenerateToken(DefaultTokenLength)
	require.NoError(t, err)
	one := 1
	inv := &models.Invite{Token: tok, RoleToGrant: models.RoleCollaborator, CreatedBy: admin, MaxUses: &one}
	require.NoError(t, repo.Create(ctx, inv))

	const n = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		reasons = map[models.Reason]int{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := repo.Consume(ctx, ConsumeRequest{Token: tok, ConsumerID: uuid.New(), Now: time.Now()})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				reasons[models.ReasonStoreUnavailable]++
				return
			}
			if out.Reason == models.ReasonNone {
				ok++
				return
			}
			reasons[out.Reason]++
		}()
	}
	wg.Wait()

	require.Equal(t, 1, ok)
	require.Zero(t, reasons[models.ReasonStoreUnavailable])
	got, err := repo.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Uses)

	reds, err := repo.ListRedemptions(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, reds, 1)
}

func TestRepositoryElevationAndIdempotency(t *testing.T) {
	pool := newTestPool(t)
	repo := NewRepository(pool)
	ctx := context.Background()
	admin := seedProfile(t, pool, models.RoleAdmin)

	tok, err := GenerateToken(DefaultTokenLength)
	require.NoError(t, err)
	inv := &models.Invite{Token: tok, RoleToGrant: models.RoleCollaborator, CreatedBy: admin}
	require.NoError(t, repo.Create(ctx, inv))

	// Admin consuming a collaborator invite keeps admin.
	out, err := repo.Consume(ctx, ConsumeRequest{Token: tok, ConsumerID: admin, Now: time.Now()})
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, out.Redemption.ResultingRole)

	// A consumer without a profile row gets one at the granted role.
	fresh := uuid.New()
	out, err = repo.Consume(ctx, ConsumeRequest{Token: tok, ConsumerID: fresh, IdempotencyKey: "k", Now: time.Now()})
	require.NoError(t, err)
	require.Equal(t, models.RoleCollaborator, out.Redemption.ResultingRole)

	replay, err := repo.Consume(ctx, ConsumeRequest{Token: tok, ConsumerID: fresh, IdempotencyKey: "k", Now: time.Now()})
	require.NoError(t, err)
	require.True(t, replay.Replayed)
	require.Equal(t, out.Redemption.ID, replay.Redemption.ID)

	got, err := repo.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.Uses)
}

func TestRepositoryRevokeAndExpiry(t *testing.T) {
	pool := newTestPool(t)
	repo := NewRepository(pool)
	ctx := context.Background()
	admin := seedProfile(t, pool, models.RoleAdmin)

	tok, err := GenerateToken(DefaultTokenLength)
	require.NoError(t, err)
	past := time.Now().Add(-time.Second)
	inv := &models.Invite{Token: tok, RoleToGrant: models.RoleCollaborator, CreatedBy: admin, ExpiresAt: &past}
	require.NoError(t, repo.Create(ctx, inv))

	out, err := repo.Consume(ctx, ConsumeRequest{Token: tok, ConsumerID: uuid.New(), Now: time.Now()})
	require.NoError(t, err)
	require.Equal(t, models.ReasonExpired, out.Reason)

	first, err := repo.Revoke(ctx, inv.ID, time.Now())
	require.NoError(t, err)
	second, err := repo.Revoke(ctx, inv.ID, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.True(t, first.RevokedAt.Equal(*second.RevokedAt))

	_, err = repo.Revoke(ctx, uuid.New(), time.Now())
	require.ErrorIs(t, err, ErrNotFound)

	dup := &models.Invite{Token: tok, RoleToGrant: models.RoleCollaborator, CreatedBy: admin}
	require.ErrorIs(t, repo.Create(ctx, dup), ErrTokenTaken)
}
