package es

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersion(t *testing.T) {
	v1, v2 := Version(1), Version(2)
	require.True(t, v1 < v2)
	require.Equal(t, v2, v1.Next())

	data, err := json.Marshal(v1)
	require.NoError(t, err)
	require.Equal(t, `1`, string(data))

	var x Version
	require.NoError(t, json.Unmarshal([]byte("1234"), &x))
	require.Equal(t, Version(1234), x)
}

func TestVersionFrom(t *testing.T) {
	for _, in := range []any{3, int64(3), uint64(3), float64(3), Version(3), json.Number("3")} {
		v, ok := versionFrom(in)
		require.True(t, ok, "%T", in)
		require.Equal(t, Version(3), v)
	}

	_, ok := versionFrom("3")
	require.False(t, ok)
	_, ok = versionFrom(-1)
	require.False(t, ok)
}

func TestVersionFrom_large(t *testing.T) {
	const big = uint64(1)<<60 + 1
	for _, in := range []any{big, int64(big), json.Number("1152921504606846977")} {
		v, ok := versionFrom(in)
		require.True(t, ok, "%T", in)
		require.Equal(t, Version(big), v)
	}

	v, ok := versionFrom(uint64(1)<<63 + 1)
	require.True(t, ok)
	require.Equal(t, Version(1<<63+1), v)

	_, ok = versionFrom(json.Number("-2"))
	require.False(t, ok)
}
