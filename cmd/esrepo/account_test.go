package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/esrepo-go/core/es"
)

func TestAccount(t *testing.T) {
	_, err := OpenAccount("", "owner")
	require.Error(t, err)

	a, err := OpenAccount("acc-1", "alice")
	require.NoError(t, err)
	require.Equal(t, "alice", a.Owner)
	require.True(t, a.HasPendingEvents())

	require.Error(t, a.Deposit(0))
	require.NoError(t, a.Deposit(30))
	require.NoError(t, a.Deposit(12))
	require.Equal(t, int64(42), a.Balance)
	require.Equal(t, 2, a.Deposits)
}

func TestAccount_roundTrip(t *testing.T) {
	ctx := context.Background()
	env, err := es.NewEnv(es.WithInMemory())
	require.NoError(t, err)

	repo, err := env.Repository((&Account{}).AggregateType(), es.WithOneStreamPerAggregate())
	require.NoError(t, err)
	accounts := es.NewTypedRepository[*Account](repo)

	a, err := OpenAccount("acc-2", "bob")
	require.NoError(t, err)
	require.NoError(t, a.Deposit(5))
	require.NoError(t, accounts.Save(ctx, a))

	repo.ClearIdentityMap()
	loaded, err := accounts.Get(ctx, "acc-2")
	require.NoError(t, err)
	require.Equal(t, "bob", loaded.Owner)
	require.Equal(t, int64(5), loaded.Balance)
	require.Equal(t, es.Version(2), repo.ExtractAggregateVersion(loaded))
}
