package es

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAggregateTranslator(t *testing.T) {
	tr := NewAggregateTranslator()

	c := startCounter(t, "c1")
	require.NoError(t, c.Inc())

	require.Equal(t, "c1", tr.ExtractAggregateID(c))
	require.Equal(t, Version(2), tr.ExtractAggregateVersion(c))

	pending := tr.ExtractPendingStreamEvents(c)
	require.Len(t, pending, 2)
	require.Empty(t, tr.ExtractPendingStreamEvents(c))
	require.Equal(t, Version(2), tr.ExtractAggregateVersion(c))

	rebuilt, err := tr.ReconstituteAggregateFromHistory(AggregateTypeFor[*counter](), pending)
	require.NoError(t, err)
	require.NotSame(t, c, rebuilt)
	require.Equal(t, 1, rebuilt.(*counter).Count)
	require.Equal(t, Version(2), tr.ExtractAggregateVersion(rebuilt))
	require.False(t, rebuilt.root().HasPendingEvents())

	require.NoError(t, tr.ReplayStreamEvents(rebuilt, []AggregateChanged{
		Occur("Incremented", "c1", nil).WithVersion(3),
	}))
	require.Equal(t, 2, rebuilt.(*counter).Count)
	require.Equal(t, Version(3), tr.ExtractAggregateVersion(rebuilt))
}

func TestAggregateTranslator_emptyHistory(t *testing.T) {
	_, err := NewAggregateTranslator().ReconstituteAggregateFromHistory(AggregateTypeFor[*counter](), nil)
	require.ErrorIs(t, err, ErrEmptyHistory)
}

func TestAggregateTranslator_typeFromMetadata(t *testing.T) {
	at, err := AggregateTypeFromMapping(
		TypeMapping{Name: "counter", Prototype: &counter{}},
		TypeMapping{Name: "gauge", Prototype: &gauge{}},
	)
	require.NoError(t, err)

	history := []AggregateChanged{
		Occur("Started", "g1", nil).WithVersion(1).WithAddedMetadata(MetaAggregateType, "gauge"),
	}
	a, err := NewAggregateTranslator().ReconstituteAggregateFromHistory(at, history)
	require.NoError(t, err)
	require.IsType(t, &gauge{}, a)
	require.Equal(t, "g1", a.AggregateID())
}
