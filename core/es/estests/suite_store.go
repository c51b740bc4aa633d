package estests

import (
	"testing"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/esrepo-go/core/es"
)

// NewStoreFunc returns the EventStore under test. Stores may be shared
// between subtests; every subtest uses its own stream names.
type NewStoreFunc func(t *testing.T) es.EventStore

func uniqueName(prefix string) string { return prefix + "-" + gonanoid.Must(10) }

// Event builds a versioned event as the repository would persist it.
func Event(aggType, aggID string, v es.Version, name string, payload map[string]any) es.AggregateChanged {
	return es.Occur(name, aggID, payload).
		WithVersion(v).
		WithAddedMetadata(es.MetaAggregateType, aggType)
}

// RunEventStoreSuite checks the EventStore contract.
func RunEventStoreSuite(t *testing.T, newStore NewStoreFunc) {
	t.Run("create and load", func(t *testing.T) {
		var (
			s      = newStore(t)
			ctx    = t.Context()
			stream = uniqueName("user")
			e1     = Event("user", "u1", 1, "UserCreated", map[string]any{"name": "John"})
			e2     = Event("user", "u1", 2, "UserNameChanged", map[string]any{"name": "Max"})
		)

		ok, err := s.HasStream(ctx, stream)
		require.NoError(t, err)
		require.False(t, ok)

		require.NoError(t, s.Create(ctx, es.Stream{
			Name:     stream,
			Metadata: map[string]any{"tenant": "acme"},
			Events:   []es.AggregateChanged{e1, e2},
		}))

		ok, err = s.HasStream(ctx, stream)
		require.NoError(t, err)
		require.True(t, ok)

		md, err := s.FetchStreamMetadata(ctx, stream)
		require.NoError(t, err)
		require.Equal(t, "acme", md["tenant"])

		loaded, err := s.Load(ctx, stream, 1)
		require.NoError(t, err)
		require.Len(t, loaded, 2)
		for i, want := range []es.AggregateChanged{e1, e2} {
			got := loaded[i]
			require.Equal(t, want.UUID(), got.UUID())
			require.Equal(t, want.MessageName(), got.MessageName())
			require.Equal(t, want.AggregateID(), got.AggregateID())
			require.Equal(t, want.Version(), got.Version())
			require.Equal(t, want.PayloadString("name"), got.PayloadString("name"))
			require.Equal(t, "user", got.Metadata()[es.MetaAggregateType])
			require.WithinDuration(t, want.CreatedAt(), got.CreatedAt(), time.Millisecond)
		}
	})

	t.Run("create existing stream", func(t *testing.T) {
		s, ctx, stream := newStore(t), t.Context(), uniqueName("dup")
		require.NoError(t, s.Create(ctx, es.Stream{Name: stream}))
		require.ErrorIs(t, s.Create(ctx, es.Stream{Name: stream}), es.ErrStreamExistsAlready)
	})

	t.Run("missing stream", func(t *testing.T) {
		s, ctx, stream := newStore(t), t.Context(), uniqueName("missing")

		err := s.AppendTo(ctx, stream, []es.AggregateChanged{Event("user", "u1", 1, "UserCreated", nil)})
		require.ErrorIs(t, err, es.ErrStreamNotFound)

		_, err = s.Load(ctx, stream, 1)
		require.ErrorIs(t, err, es.ErrStreamNotFound)

		_, err = s.FetchStreamMetadata(ctx, stream)
		require.ErrorIs(t, err, es.ErrStreamNotFound)
	})

	t.Run("append, positions and count", func(t *testing.T) {
		s, ctx, stream := newStore(t), t.Context(), uniqueName("append")
		require.NoError(t, s.Create(ctx, es.Stream{Name: stream}))

		for v := es.Version(1); v <= 5; v++ {
			require.NoError(t, s.AppendTo(ctx, stream, []es.AggregateChanged{
				Event("counter", "c1", v, "Incremented", map[string]any{"n": int(v)}),
			}))
		}

		all, err := s.Load(ctx, stream, 1)
		require.NoError(t, err)
		require.Len(t, all, 5)

		tail, err := s.Load(ctx, stream, 3)
		require.NoError(t, err)
		require.Len(t, tail, 3)
		require.Equal(t, es.Version(3), tail[0].Version())
		require.EqualValues(t, 3, tail[0].PayloadInt("n"))

		limited, err := s.Load(ctx, stream, 2, es.WithCount(2))
		require.NoError(t, err)
		require.Len(t, limited, 2)
		require.Equal(t, es.Version(2), limited[0].Version())
		require.Equal(t, es.Version(3), limited[1].Version())

		none, err := s.Load(ctx, stream, 6)
		require.NoError(t, err)
		require.Empty(t, none)
	})

	t.Run("metadata matcher", func(t *testing.T) {
		s, ctx, stream := newStore(t), t.Context(), uniqueName("shared")
		require.NoError(t, s.Create(ctx, es.Stream{Name: stream}))
		require.NoError(t, s.AppendTo(ctx, stream, []es.AggregateChanged{
			Event("user", "u1", 1, "UserCreated", nil),
			Event("user", "u2", 1, "UserCreated", nil),
			Event("post", "u1", 1, "PostPublished", nil),
			Event("user", "u1", 2, "UserNameChanged", nil),
			Event("user", "u1", 3, "UserNameChanged", nil),
		}))

		byAggregate := es.NewMetadataMatcher().
			WithMetadataMatch(es.MetaAggregateType, es.OpEquals, "user").
			WithMetadataMatch(es.MetaAggregateID, es.OpEquals, "u1")

		loaded, err := s.Load(ctx, stream, 1, es.WithMetadataMatcher(byAggregate))
		require.NoError(t, err)
		require.Len(t, loaded, 3)
		for i, e := range loaded {
			require.Equal(t, es.Version(i+1), e.Version())
			require.Equal(t, "u1", e.AggregateID())
		}

		newer, err := s.Load(ctx, stream, 1, es.WithMetadataMatcher(
			byAggregate.WithMetadataMatch(es.MetaAggregateVersion, es.OpGreaterThan, 1),
		))
		require.NoError(t, err)
		require.Len(t, newer, 2)
		require.Equal(t, es.Version(2), newer[0].Version())

		firstOnly, err := s.Load(ctx, stream, 1, es.WithMetadataMatcher(byAggregate), es.WithCount(1))
		require.NoError(t, err)
		require.Len(t, firstOnly, 1)

		posts, err := s.Load(ctx, stream, 1, es.WithMetadataMatcher(
			es.NewMetadataMatcher().WithMetadataMatch(es.MetaAggregateType, es.OpNotEquals, "user"),
		))
		require.NoError(t, err)
		require.Len(t, posts, 1)
		require.Equal(t, "PostPublished", posts[0].MessageName())
	})

	t.Run("version conflict", func(t *testing.T) {
		s, ctx, stream := newStore(t), t.Context(), uniqueName("conflict")
		require.NoError(t, s.Create(ctx, es.Stream{
			Name:   stream,
			Events: []es.AggregateChanged{Event("user", "u1", 1, "UserCreated", nil)},
		}))
		require.NoError(t, s.AppendTo(ctx, stream, []es.AggregateChanged{Event("user", "u1", 2, "UserNameChanged", nil)}))

		err := s.AppendTo(ctx, stream, []es.AggregateChanged{Event("user", "u1", 2, "UserNameChanged", nil)})
		require.ErrorIs(t, err, es.ErrConcurrencyConflict)

		loaded, err := s.Load(ctx, stream, 1)
		require.NoError(t, err)
		require.Len(t, loaded, 2)
	})
}
