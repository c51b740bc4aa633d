package es

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codewandler/esrepo-go/ports/kv"
)

var (
	ErrSnapshotStoreUnconfigured = errors.New("no snapshot store configured")
	ErrSnapshotNotFound          = errors.New("snapshot not found")
)

const (
	EncodingJSON   = "json"
	EncodingCustom = "custom"
)

type (
	// Snapshot is the serialized state of an aggregate as of LastVersion.
	Snapshot struct {
		SnapshotID    string    `json:"snapshot_id"`
		AggregateType string    `json:"aggregate_type"`
		TypeName      string    `json:"type_name,omitempty"` // mapped name of the concrete type
		AggregateID   string    `json:"aggregate_id"`
		LastVersion   Version   `json:"last_version"`
		CreatedAt     time.Time `json:"created_at"`
		Encoding      string    `json:"encoding"`
		Data          []byte    `json:"data"`
	}

	// Snapshottable aggregates serialize themselves. Others are encoded
	// as JSON.
	Snapshottable interface {
		Snapshot() (data []byte, err error)
		RestoreSnapshot(data []byte) error
	}

	// SnapshotStore keeps the latest snapshot per aggregate. Get fails with
	// ErrSnapshotNotFound when there is none.
	SnapshotStore interface {
		Get(ctx context.Context, aggType AggregateType, aggID string) (*Snapshot, error)
		Save(ctx context.Context, snapshots ...*Snapshot) error
	}
)

func (s *Snapshot) logAttrs() slog.Attr {
	return slog.Group(
		"snapshot",
		slog.String("id", s.SnapshotID),
		slog.String("aggregate_type", s.AggregateType),
		slog.String("aggregate_id", s.AggregateID),
		s.LastVersion.SlogAttrWithKey("last_version"),
		slog.Time("created_at", s.CreatedAt),
		slog.Int("size", len(s.Data)),
	)
}

// NewSnapshot captures the current state of a. Pending events are not
// part of a snapshot, so a must have none.
func NewSnapshot(t AggregateType, a Aggregate) (*Snapshot, error) {
	r := a.root()
	if r.HasPendingEvents() {
		return nil, fmt.Errorf("%w: %s %s", ErrAggregateHasPendingEvents, t, a.AggregateID())
	}

	var (
		data     []byte
		err      error
		encoding = EncodingJSON
	)
	if s, ok := a.(Snapshottable); ok {
		data, err = s.Snapshot()
		encoding = EncodingCustom
	} else {
		data, err = jsonCodec.Marshal(a)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot of %s %s: %w", t, a.AggregateID(), err)
	}

	ss := &Snapshot{
		SnapshotID:    gonanoid.Must(),
		AggregateType: t.String(),
		AggregateID:   a.AggregateID(),
		LastVersion:   r.version,
		CreatedAt:     time.Now().UTC(),
		Encoding:      encoding,
		Data:          data,
	}
	if name := t.NameOf(a); name != ss.AggregateType {
		ss.TypeName = name
	}
	return ss, nil
}

// restoreSnapshot builds an aggregate of type t from ss.
func restoreSnapshot(t AggregateType, ss *Snapshot) (Aggregate, error) {
	name := ss.TypeName
	if name == "" {
		name = ss.AggregateType
	}
	a, err := t.newInstance(name)
	if err != nil {
		return nil, err
	}
	if s, ok := a.(Snapshottable); ok {
		err = s.RestoreSnapshot(ss.Data)
	} else {
		err = jsonCodec.Unmarshal(ss.Data, a)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to restore snapshot %s: %w", ss.SnapshotID, err)
	}
	a.root().version = ss.LastVersion
	return a, nil
}

func snapshotKey(aggType, aggID string) string {
	return fmt.Sprintf("%s-%s", aggType, aggID)
}

// === In-Memory ===

type InMemorySnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]*Snapshot
}

func NewInMemorySnapshotStore() *InMemorySnapshotStore {
	return &InMemorySnapshotStore{snapshots: map[string]*Snapshot{}}
}

func (i *InMemorySnapshotStore) Save(_ context.Context, snapshots ...*Snapshot) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	for _, s := range snapshots {
		cp := *s
		i.snapshots[snapshotKey(s.AggregateType, s.AggregateID)] = &cp
	}
	return nil
}

func (i *InMemorySnapshotStore) Get(_ context.Context, aggType AggregateType, aggID string) (*Snapshot, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	s, ok := i.snapshots[snapshotKey(aggType.String(), aggID)]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	cp := *s
	return &cp, nil
}

var _ SnapshotStore = (*InMemorySnapshotStore)(nil)

// === Key/Value ===

// KeyValueSnapshotStore stores snapshots as JSON documents in a kv.Store.
type KeyValueSnapshotStore struct {
	kv kv.Store
}

func NewKeyValueSnapshotStore(store kv.Store) *KeyValueSnapshotStore {
	return &KeyValueSnapshotStore{kv: store}
}

func (k *KeyValueSnapshotStore) kvKey(aggType, aggID string) string {
	return "snapshot." + kvSafe(aggType) + "." + kvSafe(aggID)
}

func (k *KeyValueSnapshotStore) Save(ctx context.Context, snapshots ...*Snapshot) error {
	for _, s := range snapshots {
		if err := kv.Put(ctx, k.kv, k.kvKey(s.AggregateType, s.AggregateID), s); err != nil {
			return fmt.Errorf("failed to save snapshot of %s %s: %w", s.AggregateType, s.AggregateID, err)
		}
	}
	return nil
}

func (k *KeyValueSnapshotStore) Get(ctx context.Context, aggType AggregateType, aggID string) (*Snapshot, error) {
	s, err := kv.Get[*Snapshot](ctx, k.kv, k.kvKey(aggType.String(), aggID))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}
	return s, nil
}

var _ SnapshotStore = (*KeyValueSnapshotStore)(nil)

func kvSafe(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }
