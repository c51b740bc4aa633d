package es

import (
	"encoding/json"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// TimeFormat is the created_at layout of persisted events: ISO-8601 with
// microseconds.
const TimeFormat = "2006-01-02T15:04:05.000000Z07:00"

var (
	jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary
	// numberCodec decodes numbers into json.Number.
	numberCodec = jsoniter.Config{
		EscapeHTML:             true,
		SortMapKeys:            true,
		ValidateJsonRawMessage: true,
		UseNumber:              true,
	}.Froze()
)

// envelope is the wire shape of an AggregateChanged.
type envelope struct {
	ID        string         `json:"id"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt string         `json:"created_at"`
}

func (e AggregateChanged) MarshalJSON() ([]byte, error) {
	return jsonCodec.Marshal(envelope{
		ID:        e.uuid,
		EventType: e.name,
		Payload:   nonNil(e.payload),
		Metadata:  nonNil(e.metadata),
		CreatedAt: e.createdAt.UTC().Format(TimeFormat),
	})
}

func (e *AggregateChanged) UnmarshalJSON(data []byte) error {
	var env envelope
	if err := numberCodec.Unmarshal(data, &env); err != nil {
		return err
	}
	createdAt, err := ParseTime(env.CreatedAt)
	if err != nil {
		return err
	}
	restored, err := RestoreAggregateChanged(
		env.ID,
		env.EventType,
		normalizeNumbers(env.Payload),
		normalizeNumbers(env.Metadata),
		createdAt,
	)
	if err != nil {
		return err
	}
	*e = restored
	return nil
}

// ParseTime parses a created_at value written with TimeFormat. RFC 3339
// values are accepted as well.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeFormat, s)
	if err == nil {
		return t.UTC(), nil
	}
	if t, err2 := time.Parse(time.RFC3339Nano, s); err2 == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid created_at %q: %w", s, err)
}

// UnmarshalMap decodes a JSON object the way payloads and metadata of
// events are decoded: integral numbers become int64, others float64.
func UnmarshalMap(data []byte) (map[string]any, error) {
	m := map[string]any{}
	if len(data) == 0 {
		return m, nil
	}
	if err := numberCodec.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m == nil {
		return map[string]any{}, nil
	}
	return normalizeNumbers(m), nil
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// normalizeNumbers turns json.Number values into int64 where they are
// integral and float64 otherwise.
func normalizeNumbers(m map[string]any) map[string]any {
	for k, v := range m {
		m[k] = normalizeNumber(v)
	}
	return m
}

func normalizeNumber(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		return normalizeNumbers(x)
	case []any:
		for i := range x {
			x[i] = normalizeNumber(x[i])
		}
		return x
	}
	return v
}
