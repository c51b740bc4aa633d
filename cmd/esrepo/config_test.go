package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig_defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, "memory", cfg.Backend)
	require.Equal(t, "per_aggregate", cfg.StreamMode)
	require.True(t, cfg.Snapshots)
	require.Equal(t, 10, cfg.Accounts)
	require.Equal(t, slog.LevelInfo, cfg.LogLevel())
}

func TestLoadConfig_fileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "esrepo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend: sqlite
stream_mode: shared
accounts: 2
sqlite:
  dsn: ":memory:"
log:
  level: debug
`), 0o600))

	t.Setenv("ESREPO_ACCOUNTS", "4")
	t.Setenv("ESREPO_METRICS_ADDR", ":9100")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.Backend)
	require.Equal(t, "shared", cfg.StreamMode)
	require.Equal(t, ":memory:", cfg.SQLite.DSN)
	require.Equal(t, 4, cfg.Accounts)
	require.Equal(t, ":9100", cfg.Metrics.Addr)
	require.Equal(t, slog.LevelDebug, cfg.LogLevel())
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config { return testConfig("memory", "shared", false) }
	require.NoError(t, valid().Validate())

	c := valid()
	c.Backend = "redis"
	require.ErrorContains(t, c.Validate(), "unknown backend")

	c = valid()
	c.StreamMode = "sideways"
	require.ErrorContains(t, c.Validate(), "unknown stream mode")

	c = valid()
	c.Workers = 0
	require.Error(t, c.Validate())
}

func TestLoadConfig_missingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
