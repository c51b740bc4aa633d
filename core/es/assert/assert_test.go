package assert

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssert(t *testing.T) {
	mustBeTrue := True(true, "must be true")
	require.True(t, mustBeTrue.Eval())
	require.NoError(t, mustBeTrue.Check())
	require.Equal(t, "must be true", mustBeTrue.String())

	mustBeFalse := False(false, "must be false")
	require.True(t, mustBeFalse.Eval())
	require.NoError(t, mustBeFalse.Check())

	require.NoError(t, All(mustBeTrue, mustBeFalse).Check())

	err := All(mustBeTrue, NotEmpty("", "name")).Check()
	require.ErrorIs(t, err, ErrFailed)
	require.ErrorContains(t, err, "name must not be empty")
}

func TestNot(t *testing.T) {
	c := Not(True(true, "x"))
	require.False(t, c.Eval())
	require.Equal(t, "not(x)", c.String())
	require.ErrorIs(t, c.Check(), ErrFailed)
}
