package nats

import (
	"context"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/codewandler/esrepo-go/core/es"
	"github.com/codewandler/esrepo-go/ports/kv"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultBucket = "esrepo_kv"

type KvConfig struct {
	Connect Connector // Connect creates the NATS connection. If nil, ConnectDefault() is used.
	Bucket  string
	// Memory keeps the bucket in server memory instead of on disk.
	Memory bool
}

// KvStore implements kv.Store on a JetStream key/value bucket. Keys must
// be valid NATS KV keys.
type KvStore struct {
	kv      jetstream.KeyValue
	closeNc closeFunc
}

// record is the stored form of a kv.Entry.
type record struct {
	Data []byte            `json:"data"`
	Meta map[string]string `json:"meta,omitempty"`
}

func NewKvStore(ctx context.Context, cfg KvConfig) (*KvStore, error) {
	doConnect := cfg.Connect
	if doConnect == nil {
		doConnect = ConnectDefault()
	}

	nc, closeNc, err := doConnect()
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		closeNc()
		return nil, err
	}

	bucket, err := ensureBucket(ctx, js, cfg.Bucket, cfg.Memory)
	if err != nil {
		closeNc()
		return nil, err
	}
	return &KvStore{kv: bucket, closeNc: closeNc}, nil
}

func ensureBucket(ctx context.Context, js jetstream.JetStream, name string, memory bool) (jetstream.KeyValue, error) {
	if name == "" {
		name = defaultBucket
	}
	storage := jetstream.FileStorage
	if memory {
		storage = jetstream.MemoryStorage
	}
	bucket, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  name,
		History: 1,
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure bucket %s: %w", name, err)
	}
	return bucket, nil
}

func (k *KvStore) Close() error {
	k.closeNc()
	return nil
}

func (k *KvStore) Create(ctx context.Context, key string, entry kv.Entry) error {
	data, err := json.Marshal(record{Data: entry.Data, Meta: entry.Meta})
	if err != nil {
		return err
	}
	if _, err := k.kv.Create(ctx, key, data); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return fmt.Errorf("%w: %s", kv.ErrKeyExists, key)
		}
		return fmt.Errorf("failed to create %s: %w", key, err)
	}
	return nil
}

func (k *KvStore) Put(ctx context.Context, key string, entry kv.Entry) error {
	data, err := json.Marshal(record{Data: entry.Data, Meta: entry.Meta})
	if err != nil {
		return err
	}
	if _, err := k.kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func (k *KvStore) Get(ctx context.Context, key string) (kv.Entry, error) {
	v, err := k.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return kv.Entry{}, fmt.Errorf("%w: %s", kv.ErrNotFound, key)
		}
		return kv.Entry{}, fmt.Errorf("failed to get %s: %w", key, err)
	}
	var rec record
	if err := json.Unmarshal(v.Value(), &rec); err != nil {
		return kv.Entry{}, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return kv.Entry{Data: rec.Data, Meta: rec.Meta}, nil
}

func (k *KvStore) Delete(ctx context.Context, key string) error {
	if err := k.kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

var _ kv.Store = (*KvStore)(nil)

// NewSnapshotStore returns a snapshot store on a JetStream key/value
// bucket.
func NewSnapshotStore(ctx context.Context, cfg KvConfig) (*es.KeyValueSnapshotStore, error) {
	store, err := NewKvStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return es.NewKeyValueSnapshotStore(store), nil
}
