// Package kv is the key/value port. Snapshot stores and stream registries
// are built on top of it and backed by memory, NATS KV or SQL.
package kv

import (
	"context"
	"errors"

	jsoniter "github.com/json-iterator/go"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrKeyExists = errors.New("key exists")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Entry struct {
	Data []byte
	Meta map[string]string
}

type Store interface {
	// Create stores entry under key unless the key is already taken, in
	// which case ErrKeyExists is returned.
	Create(ctx context.Context, key string, entry Entry) error
	Put(ctx context.Context, key string, entry Entry) error
	Get(ctx context.Context, key string) (entry Entry, err error)
	Delete(ctx context.Context, key string) error
}

func Put[T any](ctx context.Context, store Store, key string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return store.Put(ctx, key, Entry{Data: data})
}

func Create[T any](ctx context.Context, store Store, key string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return store.Create(ctx, key, Entry{Data: data})
}

func Get[T any](ctx context.Context, store Store, key string) (out T, err error) {
	entry, err := store.Get(ctx, key)
	if err != nil {
		return
	}
	err = json.Unmarshal(entry.Data, &out)
	return
}
