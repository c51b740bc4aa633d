package sqlstore

import (
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/esrepo-go/core/es"
	"github.com/codewandler/esrepo-go/core/es/estests"
)

func runStoreSuites(t *testing.T, db *sqlx.DB, dialect Dialect) {
	cfg := Config{DB: db, Dialect: dialect}

	store, err := NewEventStore(cfg)
	require.NoError(t, err)
	snapshots, err := NewSnapshotStore(cfg)
	require.NoError(t, err)

	t.Run("contract", func(t *testing.T) {
		estests.RunEventStoreSuite(t, func(*testing.T) es.EventStore { return store })
	})

	t.Run("repository", func(t *testing.T) {
		estests.RunRepositorySuite(t, func(t *testing.T) *es.Env {
			env, err := es.NewEnv(es.WithStore(store), es.WithSnapshotStore(snapshots))
			require.NoError(t, err)
			return env
		})
	})

	t.Run("payload numbers survive", func(t *testing.T) {
		ctx := t.Context()
		e := estests.Event("user", "u1", 1, "Deposited", map[string]any{"amount": 42, "rate": 0.5})
		require.NoError(t, store.Create(ctx, es.Stream{Name: "numbers-" + string(dialect), Events: []es.AggregateChanged{e}}))

		loaded, err := store.Load(ctx, "numbers-"+string(dialect), 1)
		require.NoError(t, err)
		require.Len(t, loaded, 1)
		require.Equal(t, int64(42), loaded[0].PayloadInt("amount"))
		require.Equal(t, 0.5, loaded[0].Payload()["rate"])
		require.True(t, e.CreatedAt().Truncate(time.Microsecond).Equal(loaded[0].CreatedAt()))
	})

	t.Run("custom metadata matcher", func(t *testing.T) {
		ctx := t.Context()
		stream := "tenants-" + string(dialect)
		require.NoError(t, store.Create(ctx, es.Stream{Name: stream, Events: []es.AggregateChanged{
			estests.Event("user", "u1", 1, "UserCreated", nil).WithAddedMetadata("tenant", "a").WithAddedMetadata("weight", 1),
			estests.Event("user", "u2", 1, "UserCreated", nil).WithAddedMetadata("tenant", "b").WithAddedMetadata("weight", 5),
			estests.Event("user", "u3", 1, "UserCreated", nil),
		}}))

		byTenant, err := store.Load(ctx, stream, 1, es.WithMetadataMatcher(
			es.NewMetadataMatcher().WithMetadataMatch("tenant", es.OpEquals, "b"),
		))
		require.NoError(t, err)
		require.Len(t, byTenant, 1)
		require.Equal(t, "u2", byTenant[0].AggregateID())

		heavy, err := store.Load(ctx, stream, 1, es.WithMetadataMatcher(
			es.NewMetadataMatcher().WithMetadataMatch("weight", es.OpGreaterThanEquals, 2),
		))
		require.NoError(t, err)
		require.Len(t, heavy, 1)
		require.Equal(t, "u2", heavy[0].AggregateID())
	})
}

func TestSQLite(t *testing.T) {
	runStoreSuites(t, NewTestSQLite(t), DialectSQLite)
}

func TestPostgres(t *testing.T) {
	runStoreSuites(t, NewTestPostgres(t), DialectPostgres)
}

func TestConfig_validate(t *testing.T) {
	_, err := NewEventStore(Config{Dialect: DialectSQLite})
	require.Error(t, err)

	_, err = NewEventStore(Config{DB: NewTestSQLite(t), Dialect: "mysql"})
	require.Error(t, err)

	d, err := ParseDialect("PostgreSQL")
	require.NoError(t, err)
	require.Equal(t, DialectPostgres, d)
	_, err = ParseDialect("oracle")
	require.Error(t, err)
}

func TestMigrate_idempotent(t *testing.T) {
	db := NewTestSQLite(t)
	require.NoError(t, Migrate(t.Context(), db, DialectSQLite))
	require.Error(t, Migrate(t.Context(), db, "mysql"))
}
