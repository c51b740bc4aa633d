package es

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type gauge struct{ counter }

type namedGauge struct{ counter }

func (g *namedGauge) AggregateType() AggregateType { return NamedAggregateType[*namedGauge]("gauge") }

func TestAggregateType_direct(t *testing.T) {
	at := AggregateTypeFor[*counter]()
	require.Equal(t, "github.com/codewandler/esrepo-go/core/es.counter", at.String())
	require.Empty(t, at.MappedClass())
	require.True(t, at.Equals(AggregateTypeOf(&counter{})))
	require.NoError(t, at.Assert(&counter{}))

	err := at.Assert(&gauge{})
	require.ErrorIs(t, err, ErrAggregateTypeMismatch)
	require.ErrorContains(t, err, "aggregate types must be equal. github.com/codewandler/esrepo-go/core/es.counter != github.com/codewandler/esrepo-go/core/es.gauge")

	a, err := at.newInstance("")
	require.NoError(t, err)
	require.IsType(t, &counter{}, a)
}

func TestAggregateType_fromString(t *testing.T) {
	_, err := AggregateTypeFromString("")
	require.ErrorIs(t, err, ErrInvalidAggregateType)

	at, err := AggregateTypeFromString("user")
	require.NoError(t, err)
	require.Equal(t, "user", at.String())
	require.Empty(t, at.MappedClass())

	_, err = at.newInstance("user")
	require.ErrorIs(t, err, ErrInvalidAggregateType)
}

func TestAggregateType_mapping(t *testing.T) {
	_, err := AggregateTypeFromMapping()
	require.ErrorIs(t, err, ErrInvalidAggregateType)
	_, err = AggregateTypeFromMapping(TypeMapping{Name: "x", Prototype: &counter{}}, TypeMapping{Name: "x", Prototype: &gauge{}})
	require.ErrorIs(t, err, ErrInvalidAggregateType)

	at, err := AggregateTypeFromMapping(
		TypeMapping{Name: "counter", Prototype: &counter{}},
		TypeMapping{Name: "gauge", Prototype: &gauge{}},
	)
	require.NoError(t, err)
	require.Equal(t, "counter", at.String())
	require.Equal(t, "github.com/codewandler/esrepo-go/core/es.counter", at.MappedClass())

	// mapping and direct type of the same class are equal
	require.True(t, at.Equals(AggregateTypeFor[*counter]()))
	require.True(t, AggregateTypeFor[*counter]().Equals(at))
	require.NoError(t, at.Assert(&counter{}))

	// a plain name matches the logical name
	byName, _ := AggregateTypeFromString("counter")
	require.True(t, at.Equals(byName))

	a, err := at.newInstance("gauge")
	require.NoError(t, err)
	require.IsType(t, &gauge{}, a)

	a, err = at.newInstance("")
	require.NoError(t, err)
	require.IsType(t, &counter{}, a)

	_, err = at.newInstance("other")
	require.ErrorIs(t, err, ErrInvalidAggregateType)
}

func TestAggregateType_provider(t *testing.T) {
	at := AggregateTypeOf(&namedGauge{})
	require.Equal(t, "gauge", at.String())
	require.NoError(t, at.Assert(&namedGauge{}))
	require.NoError(t, AggregateTypeFor[*namedGauge]().Assert(&namedGauge{}))
	require.Error(t, at.Assert(&gauge{}))
}

func TestAggregateType_zero(t *testing.T) {
	var zero AggregateType
	require.True(t, zero.IsZero())
	require.False(t, zero.Equals(zero))
}

func TestAggregateType_mappingEntries(t *testing.T) {
	at, err := AggregateTypeFromMapping(
		TypeMapping{Name: "counter", Prototype: &counter{}},
		TypeMapping{Name: "gauge", Prototype: &gauge{}},
	)
	require.NoError(t, err)

	require.Equal(t, []string{"counter", "gauge"}, at.Names())
	require.True(t, at.HasName("gauge"))
	require.False(t, at.HasName("other"))

	require.Equal(t, "counter", at.NameOf(&counter{}))
	require.Equal(t, "gauge", at.NameOf(&gauge{}))
	require.Equal(t, "counter", at.NameOf(&namedGauge{}))

	require.NoError(t, at.Assert(&gauge{}))
	require.True(t, at.Equals(AggregateTypeFor[*gauge]()))
	require.Error(t, at.Assert(&namedGauge{}))

	require.Equal(t, []string{AggregateTypeFor[*counter]().String()}, AggregateTypeFor[*counter]().Names())
}
