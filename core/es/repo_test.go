package es

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRepository_mappedTypes(t *testing.T) {
	at, err := AggregateTypeFromMapping(
		TypeMapping{Name: "counter", Prototype: &counter{}},
		TypeMapping{Name: "gauge", Prototype: &gauge{}},
	)
	require.NoError(t, err)

	modes := []struct {
		name string
		opts []RepositoryOption
	}{
		{"shared stream", nil},
		{"one stream per aggregate", []RepositoryOption{WithOneStreamPerAggregate()}},
	}
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			ctx := t.Context()
			env, err := NewEnv(WithInMemory())
			require.NoError(t, err)
			repo := NewTestRepository(t, env, at, mode.opts...)

			c := startCounter(t, "c1")
			g := &gauge{}
			require.NoError(t, RecordThat(g, Occur("Started", "g1", nil)))
			require.NoError(t, g.Inc())
			require.NoError(t, repo.SaveAggregateRoot(ctx, c))
			require.NoError(t, repo.SaveAggregateRoot(ctx, g))

			events, err := env.Store().Load(ctx, repo.StreamName("g1"), 1, WithMetadataMatcher(
				NewMetadataMatcher().WithMetadataMatch(MetaAggregateID, OpEquals, "g1"),
			))
			require.NoError(t, err)
			require.Len(t, events, 2)
			for _, e := range events {
				name, _ := e.MetadataValue(MetaAggregateType)
				require.Equal(t, "gauge", name)
			}

			loaded, err := repo.GetAggregateRoot(ctx, "g1")
			require.NoError(t, err)
			require.IsType(t, &gauge{}, loaded)
			require.Equal(t, 1, loaded.(*gauge).Count)

			other, err := repo.GetAggregateRoot(ctx, "c1")
			require.NoError(t, err)
			require.IsType(t, &counter{}, other)

			ss, err := repo.TakeSnapshot(ctx, loaded)
			require.NoError(t, err)
			require.Equal(t, "counter", ss.AggregateType)
			require.Equal(t, "gauge", ss.TypeName)

			repo.ClearIdentityMap()
			restored, err := repo.GetAggregateRoot(ctx, "g1")
			require.NoError(t, err)
			require.IsType(t, &gauge{}, restored)
			require.Equal(t, Version(2), repo.ExtractAggregateVersion(restored))
		})
	}
}
