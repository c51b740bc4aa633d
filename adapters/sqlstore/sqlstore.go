// Package sqlstore persists event streams and key/value entries in SQL
// databases. SQLite (modernc.org/sqlite) and PostgreSQL (lib/pq) are
// supported; queries are built with goqu and run through sqlx.
package sqlstore

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// Dialect names a supported database. Its value is the goqu dialect name.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(s) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	}
	return "", fmt.Errorf("unknown sql dialect %q", s)
}

func (d Dialect) driverName() string {
	if d == DialectSQLite {
		return "sqlite"
	}
	return "postgres"
}

// Open connects to dsn. SQLite connections are limited to one so that
// ":memory:" databases are shared and writers are serialized.
func Open(dialect Dialect, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, err
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

type Config struct {
	DB      *sqlx.DB
	Dialect Dialect
	Log     *slog.Logger // Log for diagnostics (optional)
}

func (c Config) validate() error {
	if c.DB == nil {
		return errors.New("db is required")
	}
	switch c.Dialect {
	case DialectSQLite, DialectPostgres:
		return nil
	}
	return fmt.Errorf("unknown sql dialect %q", c.Dialect)
}

func (c Config) builder() goqu.DialectWrapper { return goqu.Dialect(string(c.Dialect)) }

func (c Config) logger() *slog.Logger {
	if c.Log == nil {
		return slog.Default()
	}
	return c.Log
}

// isUniqueViolation reports whether err was caused by a primary key or
// unique index.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(liteErr.Error(), "UNIQUE")
		}
	}
	return false
}
