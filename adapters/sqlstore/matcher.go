package sqlstore

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/codewandler/esrepo-go/core/es"
)

// columns holding a copy of the aggregate metadata
var metadataColumns = map[string]string{
	es.MetaAggregateType:    "aggregate_type",
	es.MetaAggregateID:      "aggregate_id",
	es.MetaAggregateVersion: "aggregate_version",
}

// matcherExpressions translates the matcher into WHERE expressions, one
// per predicate.
func matcherExpressions(dialect Dialect, m es.MetadataMatcher) ([]exp.Expression, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	out := make([]exp.Expression, 0, len(m.Data()))
	for _, mm := range m.Data() {
		value, numeric := sqlValue(mm.Value)

		var lhs exp.Comparable
		if col, ok := metadataColumns[mm.Field]; ok {
			lhs = goqu.C(col)
		} else {
			lhs = metadataField(dialect, mm.Field, numeric)
		}

		switch mm.Operator {
		case es.OpEquals:
			out = append(out, lhs.Eq(value))
		case es.OpNotEquals:
			out = append(out, lhs.Neq(value))
		case es.OpGreaterThan:
			out = append(out, lhs.Gt(value))
		case es.OpGreaterThanEquals:
			out = append(out, lhs.Gte(value))
		case es.OpLowerThan:
			out = append(out, lhs.Lt(value))
		case es.OpLowerThanEquals:
			out = append(out, lhs.Lte(value))
		default:
			return nil, fmt.Errorf("unknown operator %q", mm.Operator)
		}
	}
	return out, nil
}

// metadataField selects one key of the metadata JSON document. Numeric
// comparisons only see numeric values.
func metadataField(dialect Dialect, field string, numeric bool) exp.LiteralExpression {
	if dialect == DialectPostgres {
		if numeric {
			return goqu.L(
				"(CASE WHEN jsonb_typeof(metadata->(?::text)) = 'number' THEN (metadata->>(?::text))::numeric END)",
				field, field,
			)
		}
		return goqu.L("(metadata->>(?::text))", field)
	}
	return goqu.L("json_extract(metadata, ?)", `$."`+strings.ReplaceAll(field, `"`, `\"`)+`"`)
}

// sqlValue converts a match value into a driver value and reports whether
// it is a number.
func sqlValue(v any) (any, bool) {
	switch x := v.(type) {
	case es.Version:
		return int64(x), true
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
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, true
		}
		if f, err := x.Float64(); err == nil {
			return f, true
		}
		return x.String(), false
	case string:
		return x, false
	case fmt.Stringer:
		return x.String(), false
	}
	return fmt.Sprint(v), false
}
