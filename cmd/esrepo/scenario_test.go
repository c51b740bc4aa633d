package main

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/esrepo-go/core/es"
)

func testConfig(backend, streamMode string, snapshots bool) *Config {
	return &Config{
		Backend:    backend,
		SQLite:     SQLiteConfig{DSN: ":memory:"},
		StreamMode: streamMode,
		Snapshots:  snapshots,
		Accounts:   3,
		Deposits:   5,
		Workers:    4,
		Retries:    50,
		Log:        LogConfig{Level: "error"},
	}
}

func TestRun(t *testing.T) {
	for _, backend := range []string{"memory", "sqlite"} {
		for _, mode := range []string{"shared", "per_aggregate"} {
			for _, snapshots := range []bool{true, false} {
				name := backend + "/" + mode
				if snapshots {
					name += "/snapshots"
				}
				t.Run(name, func(t *testing.T) {
					ctx := context.Background()
					cfg := testConfig(backend, mode, snapshots)
					log := slog.New(slog.DiscardHandler)

					env, closeEnv, err := openEnv(ctx, cfg, log, es.NopESMetrics())
					require.NoError(t, err)
					t.Cleanup(func() { require.NoError(t, closeEnv()) })

					summary, err := run(ctx, env, cfg, log)
					require.NoError(t, err)
					require.Equal(t, 3, summary.Accounts)
					require.Equal(t, 15, summary.Deposits)
					if snapshots {
						require.Equal(t, 3, summary.Snapshots)
					} else {
						require.Zero(t, summary.Snapshots)
					}
				})
			}
		}
	}
}

func TestRun_snapshotsAreStored(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig("memory", "per_aggregate", true)
	log := slog.New(slog.DiscardHandler)

	env, _, err := openEnv(ctx, cfg, log, es.NopESMetrics())
	require.NoError(t, err)

	summary, err := run(ctx, env, cfg, log)
	require.NoError(t, err)

	snap, err := env.SnapshotStore().Get(ctx, (&Account{}).AggregateType(), fmt.Sprintf("%s-%04d", summary.RunID, 0))
	require.NoError(t, err)
	require.NotNil(t, snap)
	require.Equal(t, es.Version(1+cfg.Deposits), snap.LastVersion)
}

func TestRun_serializedDepositsDoNotConflict(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig("memory", "shared", false)
	cfg.Serialize = true
	cfg.Retries = 0
	log := slog.New(slog.DiscardHandler)

	env, _, err := openEnv(ctx, cfg, log, es.NopESMetrics())
	require.NoError(t, err)

	summary, err := run(ctx, env, cfg, log)
	require.NoError(t, err)
	require.Zero(t, summary.Conflicts)
}

func TestExpectedBalance(t *testing.T) {
	var sum int64
	for n := range 10 {
		sum += amount(n)
	}
	require.Equal(t, sum, expectedBalance(10))
	require.Zero(t, expectedBalance(0))
}
