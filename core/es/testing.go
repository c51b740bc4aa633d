package es

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// StartTestEnv returns an Env over in-memory stores.
func StartTestEnv(t testing.TB, opts ...EnvOption) *Env {
	t.Helper()
	e, err := NewEnv(append([]EnvOption{WithInMemory()}, opts...)...)
	require.NoError(t, err)
	return e
}

// NewTestRepository creates a repository of e and, in shared stream mode,
// initializes the stream.
func NewTestRepository(t testing.TB, e *Env, aggType AggregateType, opts ...RepositoryOption) *Repository {
	t.Helper()
	r, err := e.Repository(aggType, opts...)
	require.NoError(t, err)
	require.NoError(t, r.InitializeStream(t.Context()))
	return r
}
