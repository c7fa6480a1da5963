package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgresStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("walletscore"),
		postgres.WithUsername("walletscore"),
		postgres.WithPassword("walletscore"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := ctr.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.True(t, IsPostgres(dsn))

	s, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	// schema init must be repeatable against a live server
	require.NoError(t, Init(ctx, dsn))
	return s
}

func TestPostgresStore(t *testing.T) {
	s := setupPostgresStore(t)

	t.Run("transactions", func(t *testing.T) {
		runTransactionsTest(t, s)
	})
	t.Run("scores", func(t *testing.T) {
		runScoresTest(t, s)
	})
	t.Run("state", func(t *testing.T) {
		require.NoError(t, s.Reset(context.Background()))
		runStateTest(t, s)
	})
}
