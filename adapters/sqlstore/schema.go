package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const (
	tableStreams = "event_streams"
	tableEvents  = "stream_events"
	tableKV      = "kv_entries"
)

// created_at columns hold es.TimeFormat strings, which sort in time order.
var schema = map[Dialect][]string{
	DialectSQLite: {
		`CREATE TABLE IF NOT EXISTS event_streams (
			stream_name TEXT PRIMARY KEY,
			metadata    TEXT NOT NULL,
			created_at  TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS stream_events (
			stream_name       TEXT    NOT NULL,
			"no"              INTEGER NOT NULL,
			event_id          TEXT    NOT NULL,
			event_type        TEXT    NOT NULL,
			aggregate_type    TEXT    NOT NULL DEFAULT '',
			aggregate_id      TEXT    NOT NULL DEFAULT '',
			aggregate_version INTEGER NOT NULL DEFAULT 0,
			payload           TEXT    NOT NULL,
			metadata          TEXT    NOT NULL,
			created_at        TEXT    NOT NULL,
			PRIMARY KEY (stream_name, "no")
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS stream_events_aggregate_version
			ON stream_events (stream_name, aggregate_type, aggregate_id, aggregate_version)
			WHERE aggregate_version > 0`,
		`CREATE TABLE IF NOT EXISTS kv_entries (
			"key" TEXT PRIMARY KEY,
			data  BLOB NOT NULL,
			meta  TEXT NOT NULL
		)`,
	},
	DialectPostgres: {
		`CREATE TABLE IF NOT EXISTS event_streams (
			stream_name TEXT PRIMARY KEY,
			metadata    JSONB NOT NULL,
			created_at  TEXT  NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS stream_events (
			stream_name       TEXT   NOT NULL,
			"no"              BIGINT NOT NULL,
			event_id          UUID   NOT NULL,
			event_type        TEXT   NOT NULL,
			aggregate_type    TEXT   NOT NULL DEFAULT '',
			aggregate_id      TEXT   NOT NULL DEFAULT '',
			aggregate_version BIGINT NOT NULL DEFAULT 0,
			payload           JSONB  NOT NULL,
			metadata          JSONB  NOT NULL,
			created_at        TEXT   NOT NULL,
			PRIMARY KEY (stream_name, "no")
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS stream_events_aggregate_version
			ON stream_events (stream_name, aggregate_type, aggregate_id, aggregate_version)
			WHERE aggregate_version > 0`,
		`CREATE TABLE IF NOT EXISTS kv_entries (
			"key" TEXT PRIMARY KEY,
			data  BYTEA NOT NULL,
			meta  JSONB NOT NULL
		)`,
	},
}

// Migrate creates the tables of the event store and the key/value store
// unless they exist.
func Migrate(ctx context.Context, db *sqlx.DB, dialect Dialect) error {
	stmts, ok := schema[dialect]
	if !ok {
		return fmt.Errorf("unknown sql dialect %q", dialect)
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}
