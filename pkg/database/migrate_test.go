package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrationNamesOrdered(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.Equal(t, []string{"001_schema.sql", "002_seed_aerodromes.sql"}, names)
}

func TestPending(t *testing.T) {
	names := []string{"001_schema.sql", "002_seed_aerodromes.sql", "003_more.sql"}
	require.Equal(t, names, pending(names, nil))
	require.Equal(t, []string{"003_more.sql"}, pending(names, map[string]bool{"001_schema.sql": true, "002_seed_aerodromes.sql": true}))
	require.Empty(t, pending(names, map[string]bool{"001_schema.sql": true, "002_seed_aerodromes.sql": true, "003_more.sql": true}))
}

func TestSchemaDefinesInviteGuards(t *testing.T) {
	raw, err := migrationsFS.ReadFile("migrations/001_schema.sql")
	require.NoError(t, err)
	sql := string(raw)
	for _, want := range []string{
		"CREATE OR REPLACE FUNCTION role_rank",
		"invites_token_key",
		"invite_redemptions",
		"CHECK (icao ~ '^[A-Z]{4}$')",
	} {
		require.True(t, strings.Contains(sql, want), want)
	}
}
