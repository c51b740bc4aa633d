package es

import (
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

// Metadata keys the repository stamps onto every event it persists.
const (
	MetaAggregateID      = "aggregate_id"
	MetaAggregateType    = "aggregate_type"
	MetaAggregateVersion = "aggregate_version"
)

// AggregateChanged is the immutable envelope of a domain event: what
// happened (name and payload), to which aggregate, at which version and
// when. Every mutator returns a modified copy.
type AggregateChanged struct {
	uuid        string
	name        string
	aggregateID string
	version     Version
	payload     map[string]any
	metadata    map[string]any
	createdAt   time.Time
}

// Occur creates a new, not yet versioned event for the given aggregate.
// aggregateID must not be empty, RecordThat rejects such events.
func Occur(name, aggregateID string, payload map[string]any) AggregateChanged {
	return AggregateChanged{
		uuid:        uuid.NewString(),
		name:        name,
		aggregateID: aggregateID,
		payload:     maps.Clone(payload),
		metadata:    map[string]any{MetaAggregateID: aggregateID},
		createdAt:   time.Now().UTC(),
	}
}

// RestoreAggregateChanged rebuilds an event from its persisted parts. The
// aggregate id and version are taken from the metadata.
func RestoreAggregateChanged(
	id, name string,
	payload, metadata map[string]any,
	createdAt time.Time,
) (AggregateChanged, error) {
	if _, err := uuid.Parse(id); err != nil {
		return AggregateChanged{}, fmt.Errorf("invalid event id %q: %w", id, err)
	}
	if name == "" {
		return AggregateChanged{}, fmt.Errorf("event %s has no name", id)
	}

	e := AggregateChanged{
		uuid:      id,
		name:      name,
		payload:   maps.Clone(payload),
		metadata:  maps.Clone(metadata),
		createdAt: createdAt.UTC(),
	}
	if e.metadata == nil {
		e.metadata = map[string]any{}
	}
	if id, ok := e.metadata[MetaAggregateID].(string); ok {
		e.aggregateID = id
	}
	if v, ok := versionFrom(e.metadata[MetaAggregateVersion]); ok {
		e.version = v
		e.metadata[MetaAggregateVersion] = uint64(v)
	}
	return e, nil
}

func (e AggregateChanged) UUID() string         { return e.uuid }
func (e AggregateChanged) MessageName() string  { return e.name }
func (e AggregateChanged) AggregateID() string  { return e.aggregateID }
func (e AggregateChanged) Version() Version     { return e.version }
func (e AggregateChanged) CreatedAt() time.Time { return e.createdAt }
func (e AggregateChanged) IsZero() bool         { return e.uuid == "" }

// Payload returns a copy of the event payload.
func (e AggregateChanged) Payload() map[string]any { return maps.Clone(e.payload) }

// Metadata returns a copy of the event metadata.
func (e AggregateChanged) Metadata() map[string]any { return maps.Clone(e.metadata) }

// MetadataValue returns a single metadata entry.
func (e AggregateChanged) MetadataValue(key string) (any, bool) {
	v, ok := e.metadata[key]
	return v, ok
}

// WithVersion returns a copy of e stamped with v.
func (e AggregateChanged) WithVersion(v Version) AggregateChanged {
	out := e.WithAddedMetadata(MetaAggregateVersion, uint64(v))
	out.version = v
	return out
}

func (e AggregateChanged) withAggregateID(id string) AggregateChanged {
	out := e.WithAddedMetadata(MetaAggregateID, id)
	out.aggregateID = id
	return out
}

// WithAddedMetadata returns a copy of e with key set to value.
func (e AggregateChanged) WithAddedMetadata(key string, value any) AggregateChanged {
	out := e
	out.metadata = maps.Clone(e.metadata)
	if out.metadata == nil {
		out.metadata = map[string]any{}
	}
	out.metadata[key] = value
	return out
}

func (e AggregateChanged) String() string {
	return fmt.Sprintf("%s(%s@%d)", e.name, e.aggregateID, e.version)
}

// DecodePayload converts the payload of e into T.
func DecodePayload[T any](e AggregateChanged) (out T, err error) {
	data, err := jsonCodec.Marshal(e.payload)
	if err != nil {
		return out, err
	}
	if err = jsonCodec.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode payload of %s: %w", e.name, err)
	}
	return out, nil
}

// PayloadString returns the string stored under key, or "".
func (e AggregateChanged) PayloadString(key string) string {
	s, _ := e.payload[key].(string)
	return s
}

// PayloadInt returns the number stored under key as int64. Integers are
// exact, floats are truncated.
func (e AggregateChanged) PayloadInt(key string) int64 {
	i, _ := toInt64(e.payload[key])
	return i
}
