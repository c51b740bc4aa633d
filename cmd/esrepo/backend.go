package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codewandler/esrepo-go/adapters/nats"
	"github.com/codewandler/esrepo-go/adapters/sqlstore"
	"github.com/codewandler/esrepo-go/core/es"
)

type closeFunc func() error

// openEnv wires the event store and snapshot store of the configured
// backend.
func openEnv(ctx context.Context, cfg *Config, log *slog.Logger, metrics es.ESMetrics) (*es.Env, closeFunc, error) {
	var (
		store     es.EventStore
		snapshots es.SnapshotStore
		closer    closeFunc = func() error { return nil }
	)

	switch cfg.Backend {
	case "memory":
		store = es.NewInMemoryStore(es.WithLog(log))
		snapshots = es.NewInMemorySnapshotStore()

	case "sqlite", "postgres":
		dialect, dsn := sqlstore.DialectSQLite, cfg.SQLite.DSN
		if cfg.Backend == "postgres" {
			dialect, dsn = sqlstore.DialectPostgres, cfg.Postgres.DSN
		}
		db, err := sqlstore.Open(dialect, dsn)
		if err != nil {
			return nil, nil, err
		}
		closer = db.Close
		if err := sqlstore.Migrate(ctx, db, dialect); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		sqlCfg := sqlstore.Config{DB: db, Dialect: dialect, Log: log}
		if store, err = sqlstore.NewEventStore(sqlCfg); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		if snapshots, err = sqlstore.NewSnapshotStore(sqlCfg); err != nil {
			_ = db.Close()
			return nil, nil, err
		}

	case "nats":
		connect := nats.ReuseConnection(nats.ConnectURL(cfg.Nats.URL))
		natsStore, err := nats.NewEventStore(ctx, nats.EventStoreConfig{Connect: connect, Log: log})
		if err != nil {
			return nil, nil, err
		}
		kvStore, err := nats.NewKvStore(ctx, nats.KvConfig{Connect: connect, Bucket: "esrepo_snapshots"})
		if err != nil {
			_ = natsStore.Close()
			return nil, nil, err
		}
		store = natsStore
		snapshots = es.NewKeyValueSnapshotStore(kvStore)
		closer = func() error {
			_ = kvStore.Close()
			return natsStore.Close()
		}

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	opts := []es.EnvOption{
		es.WithStore(store),
		es.WithLog(log),
		es.WithMetrics(metrics),
		es.WithRepositoryDefaults(repositoryDefaults(cfg)...),
	}
	if cfg.Snapshots {
		opts = append(opts, es.WithSnapshotStore(snapshots))
	}

	env, err := es.NewEnv(opts...)
	if err != nil {
		_ = closer()
		return nil, nil, err
	}
	return env, closer, nil
}

func repositoryDefaults(cfg *Config) []es.RepositoryOption {
	opts := []es.RepositoryOption{
		es.WithStreamMetadata(map[string]any{"app": "esrepo", "backend": cfg.Backend}),
	}
	if cfg.StreamMode == "per_aggregate" {
		opts = append(opts, es.WithOneStreamPerAggregate())
	}
	return opts
}
