package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"github.com/codewandler/esrepo-go/core/es"
	"github.com/codewandler/esrepo-go/ports/kv"
)

// KvStore implements kv.Store on the kv_entries table.
type KvStore struct {
	db *sqlx.DB
	gq goqu.DialectWrapper
}

type kvRow struct {
	Data []byte `db:"data"`
	Meta []byte `db:"meta"`
}

func NewKvStore(cfg Config) (*KvStore, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &KvStore{db: cfg.DB, gq: cfg.builder()}, nil
}

func (k *KvStore) record(key string, entry kv.Entry) (goqu.Record, error) {
	meta := entry.Meta
	if meta == nil {
		meta = map[string]string{}
	}
	md, err := jsonCodec.Marshal(meta)
	if err != nil {
		return nil, err
	}
	data := entry.Data
	if data == nil {
		data = []byte{}
	}
	return goqu.Record{"key": key, "data": data, "meta": string(md)}, nil
}

func (k *KvStore) Create(ctx context.Context, key string, entry kv.Entry) error {
	rec, err := k.record(key, entry)
	if err != nil {
		return err
	}
	query, args, err := k.gq.Insert(tableKV).Prepared(true).Rows(rec).ToSQL()
	if err != nil {
		return err
	}
	if _, err := k.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", kv.ErrKeyExists, key)
		}
		return fmt.Errorf("failed to create %s: %w", key, err)
	}
	return nil
}

func (k *KvStore) Put(ctx context.Context, key string, entry kv.Entry) error {
	rec, err := k.record(key, entry)
	if err != nil {
		return err
	}
	query, args, err := k.gq.Insert(tableKV).Prepared(true).Rows(rec).
		OnConflict(goqu.DoUpdate("key", goqu.Record{
			"data": goqu.I("excluded.data"),
			"meta": goqu.I("excluded.meta"),
		})).
		ToSQL()
	if err != nil {
		return err
	}
	if _, err := k.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func (k *KvStore) Get(ctx context.Context, key string) (kv.Entry, error) {
	query, args, err := k.gq.From(tableKV).Prepared(true).
		Select("data", "meta").
		Where(goqu.C("key").Eq(key)).
		ToSQL()
	if err != nil {
		return kv.Entry{}, err
	}

	var row kvRow
	if err := k.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return kv.Entry{}, fmt.Errorf("%w: %s", kv.ErrNotFound, key)
		}
		return kv.Entry{}, fmt.Errorf("failed to get %s: %w", key, err)
	}

	entry := kv.Entry{Data: row.Data}
	if err := jsonCodec.Unmarshal(row.Meta, &entry.Meta); err != nil {
		return kv.Entry{}, fmt.Errorf("failed to decode meta of %s: %w", key, err)
	}
	if len(entry.Meta) == 0 {
		entry.Meta = nil
	}
	return entry, nil
}

func (k *KvStore) Delete(ctx context.Context, key string) error {
	query, args, err := k.gq.Delete(tableKV).Prepared(true).
		Where(goqu.C("key").Eq(key)).
		ToSQL()
	if err != nil {
		return err
	}
	if _, err := k.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

var _ kv.Store = (*KvStore)(nil)

// NewSnapshotStore returns a snapshot store on the kv_entries table.
func NewSnapshotStore(cfg Config) (*es.KeyValueSnapshotStore, error) {
	store, err := NewKvStore(cfg)
	if err != nil {
		return nil, err
	}
	return es.NewKeyValueSnapshotStore(store), nil
}
