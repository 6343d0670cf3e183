package history

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// postgresURL returns DATABASE_URL when set, otherwise starts a pgvector
// container. Skips when neither is available.
func postgresURL(t *testing.T) string {
	t.Helper()
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		return dbURL
	}
	if testing.Short() {
		t.Skip("DATABASE_URL not set and -short given")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "pgvector/pgvector:pg16",
		postgres.WithDatabase("crestline"),
		postgres.WithUsername("crestline"),
		postgres.WithPassword("crestline"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dbURL, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dbURL
}

func TestPostgresStore(t *testing.T) {
	dbURL := postgresURL(t)

	s, err := Open(context.Background(), dbURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	// Another migrate run must be a no-op.
	require.NoError(t, MigratePostgres(dbURL))

	if os.Getenv("DATABASE_URL") != "" {
		t.Skip("shared DATABASE_URL may hold other entries")
	}
	exerciseStore(t, s)
}
