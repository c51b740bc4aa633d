package es

import (
	"cmp"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Operator compares an event's metadata value against a match value.
type Operator string

const (
	OpEquals            Operator = "="
	OpNotEquals         Operator = "!="
	OpGreaterThan       Operator = ">"
	OpGreaterThanEquals Operator = ">="
	OpLowerThan         Operator = "<"
	OpLowerThanEquals   Operator = "<="
)

func (o Operator) Valid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpGreaterThan, OpGreaterThanEquals, OpLowerThan, OpLowerThanEquals:
		return true
	}
	return false
}

// MetadataMatch is a single predicate on one metadata field.
type MetadataMatch struct {
	Field    string
	Operator Operator
	Value    any
}

func (m MetadataMatch) String() string {
	return fmt.Sprintf("%s %s %v", m.Field, m.Operator, m.Value)
}

// MetadataMatcher is an immutable conjunction of metadata predicates.
// The zero value matches everything.
type MetadataMatcher struct {
	matches []MetadataMatch
}

func NewMetadataMatcher() MetadataMatcher { return MetadataMatcher{} }

// WithMetadataMatch returns a copy of m extended by one predicate.
func (m MetadataMatcher) WithMetadataMatch(field string, op Operator, value any) MetadataMatcher {
	out := make([]MetadataMatch, len(m.matches), len(m.matches)+1)
	copy(out, m.matches)
	return MetadataMatcher{matches: append(out, MetadataMatch{Field: field, Operator: op, Value: value})}
}

// Data returns the predicates in the order they were added.
func (m MetadataMatcher) Data() []MetadataMatch {
	out := make([]MetadataMatch, len(m.matches))
	copy(out, m.matches)
	return out
}

func (m MetadataMatcher) IsEmpty() bool { return len(m.matches) == 0 }

// Validate rejects unknown operators and empty fields.
func (m MetadataMatcher) Validate() error {
	for _, mm := range m.matches {
		if mm.Field == "" {
			return fmt.Errorf("metadata match has empty field")
		}
		if !mm.Operator.Valid() {
			return fmt.Errorf("metadata match %q: unknown operator %q", mm.Field, mm.Operator)
		}
	}
	return nil
}

// Match reports whether metadata satisfies every predicate. A missing
// field never matches.
func (m MetadataMatcher) Match(metadata map[string]any) bool {
	for _, mm := range m.matches {
		v, ok := metadata[mm.Field]
		if !ok || !mm.Operator.apply(v, mm.Value) {
			return false
		}
	}
	return true
}

// Matches reports whether the metadata of e satisfies m.
func (m MetadataMatcher) Matches(e AggregateChanged) bool { return m.Match(e.metadata) }

func (m MetadataMatcher) String() string {
	parts := make([]string, len(m.matches))
	for i, mm := range m.matches {
		parts[i] = mm.String()
	}
	return strings.Join(parts, " AND ")
}

func (o Operator) apply(actual, expected any) bool {
	c, ok := compare(actual, expected)
	if !ok {
		switch o {
		case OpNotEquals:
			return true
		default:
			return false
		}
	}
	switch o {
	case OpEquals:
		return c == 0
	case OpNotEquals:
		return c != 0
	case OpGreaterThan:
		return c > 0
	case OpGreaterThanEquals:
		return c >= 0
	case OpLowerThan:
		return c < 0
	case OpLowerThanEquals:
		return c <= 0
	}
	return false
}

// compare orders two scalar metadata values. Numbers compare numerically
// regardless of their Go type, strings lexically, bools only for equality.
func compare(a, b any) (int, bool) {
	if ia, ok := exactInt(a); ok {
		if ib, ok := exactInt(b); ok {
			return cmp.Compare(ia, ib), true
		}
	}
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}

	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		if x == y {
			return 0, true
		}
		if !x {
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

// exactInt returns integers, including integral json.Numbers, that fit
// into an int64. Floats are not converted.
func exactInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return int64(x), uint64(x) <= math.MaxInt64
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), x <= math.MaxInt64
	case Version:
		return int64(x), uint64(x) <= math.MaxInt64
	case json.Number:
		i, err := x.Int64()
		return i, err == nil
	}
	return 0, false
}

// toInt64 converts integers exactly and truncates everything else
// numeric.
func toInt64(v any) (int64, bool) {
	if i, ok := exactInt(v); ok {
		return i, true
	}
	f, ok := toFloat(v)
	return int64(f), ok
}

// toUint64 is toInt64 for values that must not be negative.
func toUint64(v any) (uint64, bool) {
	switch x := v.(type) {
	case uint:
		return uint64(x), true
	case uint64:
		return x, true
	case Version:
		return uint64(x), true
	case json.Number:
		if u, err := strconv.ParseUint(x.String(), 10, 64); err == nil {
			return u, true
		}
	}
	i, ok := toInt64(v)
	if !ok || i < 0 {
		return 0, false
	}
	return uint64(i), true
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case Version:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}
