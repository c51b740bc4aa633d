package nats

import (
	"testing"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/esrepo-go/core/es"
	"github.com/codewandler/esrepo-go/core/es/estests"
)

func newTestStore(t *testing.T, connect Connector) *EventStore {
	t.Helper()
	store, err := NewEventStore(t.Context(), EventStoreConfig{
		Connect: connect,
		Memory:  true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestEventStore(t *testing.T) {
	var (
		connect = NewTestContainer(t)
		store   = newTestStore(t, connect)
	)

	t.Run("stream config", func(t *testing.T) {
		si, err := store.stream.Info(t.Context())
		require.NoError(t, err)
		require.Equal(t, defaultStreamName, si.Config.Name)
		require.Equal(t, []string{defaultSubjectPrefix + ".>"}, si.Config.Subjects)
	})

	t.Run("contract", func(t *testing.T) {
		estests.RunEventStoreSuite(t, func(*testing.T) es.EventStore { return store })
	})

	t.Run("repository", func(t *testing.T) {
		snapshots, err := NewSnapshotStore(t.Context(), KvConfig{
			Connect: connect,
			Bucket:  "snapshots",
			Memory:  true,
		})
		require.NoError(t, err)

		estests.RunRepositorySuite(t, func(t *testing.T) *es.Env {
			env, err := es.NewEnv(es.WithStore(store), es.WithSnapshotStore(snapshots))
			require.NoError(t, err)
			return env
		})
	})

	t.Run("released claims can be taken again", func(t *testing.T) {
		var (
			ctx    = t.Context()
			stream = "released-" + gonanoid.Must(8)
			ev     = estests.Event("user", "u1", 1, "UserCreated", nil)
		)
		require.NoError(t, store.Create(ctx, es.Stream{Name: stream}))

		key, ok := versionClaimKey(stream, ev)
		require.True(t, ok)
		require.NoError(t, store.registry.Create(ctx, key, kvEntry("other")))
		require.ErrorIs(t, store.AppendTo(ctx, stream, []es.AggregateChanged{ev}), es.ErrConcurrencyConflict)

		store.release([]string{key})
		require.NoError(t, store.AppendTo(ctx, stream, []es.AggregateChanged{ev}))

		loaded, err := store.Load(ctx, stream, 1)
		require.NoError(t, err)
		require.Len(t, loaded, 1)
		require.Equal(t, ev.UUID(), loaded[0].UUID())
	})

	t.Run("stream names with subject characters", func(t *testing.T) {
		var (
			ctx    = t.Context()
			stream = "a.b *>" + gonanoid.Must(8)
		)
		require.NoError(t, store.Create(ctx, es.Stream{
			Name:   stream,
			Events: []es.AggregateChanged{estests.Event("user", "u.1", 1, "UserCreated", nil)},
		}))
		loaded, err := store.Load(ctx, stream, 1)
		require.NoError(t, err)
		require.Len(t, loaded, 1)
		require.Equal(t, "u.1", loaded[0].AggregateID())
	})
}
