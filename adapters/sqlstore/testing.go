package sqlstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type Testing interface {
	require.TestingT
	Helper()
	Context() context.Context
	Logf(format string, args ...any)
	Skip(args ...any)
	Cleanup(func())
}

// NewTestSQLite returns a migrated in-memory SQLite database.
func NewTestSQLite(t Testing) *sqlx.DB {
	t.Helper()
	db, err := Open(DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(t.Context(), db, DialectSQLite))
	return db
}

// NewTestPostgres starts a PostgreSQL container for the duration of the
// test and returns a migrated database. It skips the test in short mode.
func NewTestPostgres(t Testing) *sqlx.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container skipped in short mode")
	}

	ctx := t.Context()
	pgC, err := testcontainers.Run(
		ctx, "postgres:17-alpine",
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_USER":     "esrepo",
			"POSTGRES_PASSWORD": "esrepo",
			"POSTGRES_DB":       "esrepo",
		}),
		testcontainers.WithExposedPorts("5432/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
			wait.ForListeningPort("5432/tcp"),
		),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgC); err != nil {
			t.Errorf("failed to terminate container: %s", err.Error())
		}
	})

	endpoint, err := pgC.PortEndpoint(ctx, "5432/tcp", "")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://esrepo:esrepo@%s/esrepo?sslmode=disable", endpoint)
	t.Logf("postgres dsn: %s", dsn)

	db, err := Open(DialectPostgres, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.PingContext(ctx))
	require.NoError(t, Migrate(ctx, db, DialectPostgres))
	return db
}
