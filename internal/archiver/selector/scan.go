// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

package selector

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	archiverrs "github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/errs"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/types"
)

// scanRows converts *sql.Rows into []types.Row, dispatching on each column's
// driver value plus its Postgres type name the way original_source's row
// dictionary construction dispatches on Python's isinstance chain.
func scanRows(rows *sql.Rows, columns []string) ([]types.Row, error) {
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, archiverrs.Wrap(&archiverrs.Database, nil, err)
	}

	var out []types.Row
	for rows.Next() {
		dest := make([]interface{}, len(columns))
		for i := range dest {
			dest[i] = new(interface{})
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, archiverrs.Wrap(&archiverrs.Database, nil, err)
		}

		row := make(types.Row, len(columns))
		for i, name := range columns {
			raw := *(dest[i].(*interface{}))
			row[i] = types.ColumnValue{Name: name, Value: toValue(raw, colTypes[i].DatabaseTypeName())}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, archiverrs.Wrap(&archiverrs.Database, nil, err)
	}
	return out, nil
}

// toValue maps a lib/pq-scanned driver value plus its Postgres type OID name
// to the archiver's tagged Value union.
func toValue(raw interface{}, typeName string) types.Value {
	if raw == nil {
		return types.Value{Kind: types.KindNull}
	}

	upper := strings.ToUpper(typeName)

	switch v := raw.(type) {
	case bool:
		return types.Value{Kind: types.KindBool, Bool: v}
	case int64:
		return types.Value{Kind: types.KindInt64, Int64: v}
	case float64:
		return types.Value{Kind: types.KindFloat64, Float64: v}
	case time.Time:
		switch upper {
		case "DATE":
			return types.Value{Kind: types.KindDate, Timestamp: v}
		case "TIME", "TIMETZ":
			return types.Value{Kind: types.KindTime, Timestamp: v}
		case "TIMESTAMP":
			return types.Value{Kind: types.KindTimestamp, Timestamp: v, Naive: true}
		default: // TIMESTAMPTZ and anything else timezone-aware
			return types.Value{Kind: types.KindTimestamp, Timestamp: v}
		}
	case string:
		return stringValue(v, upper)
	case []byte:
		return bytesValue(v, upper)
	default:
		return types.Value{Kind: types.KindUnknown, Unknown: archiverrs.TruncateQuery(jsonStringify(v), 200)}
	}
}

func stringValue(s string, upper string) types.Value {
	switch upper {
	case "UUID":
		if id, err := uuid.Parse(s); err == nil {
			return types.Value{Kind: types.KindUUID, UUID: id}
		}
		return types.Value{Kind: types.KindString, String: s}
	case "NUMERIC", "DECIMAL":
		return types.Value{Kind: types.KindDecimal, Decimal: s}
	case "JSON", "JSONB":
		return jsonValue([]byte(s))
	default:
		return types.Value{Kind: types.KindString, String: s}
	}
}

func bytesValue(b []byte, upper string) types.Value {
	switch upper {
	case "NUMERIC", "DECIMAL":
		return types.Value{Kind: types.KindDecimal, Decimal: string(b)}
	case "UUID":
		if id, err := uuid.Parse(string(b)); err == nil {
			return types.Value{Kind: types.KindUUID, UUID: id}
		}
		return types.Value{Kind: types.KindString, String: string(b)}
	case "JSON", "JSONB":
		return jsonValue(b)
	case "BYTEA":
		return types.Value{Kind: types.KindBytes, Bytes: b}
	default:
		return types.Value{Kind: types.KindString, String: string(b)}
	}
}

// jsonValue decodes a JSON/JSONB column into a nested Value (map or array),
// falling back to the unknown kind if decoding fails.
func jsonValue(raw []byte) types.Value {
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return types.Value{Kind: types.KindUnknown, Unknown: string(raw)}
	}
	return fromGeneric(generic)
}

func fromGeneric(v interface{}) types.Value {
	switch t := v.(type) {
	case nil:
		return types.Value{Kind: types.KindNull}
	case bool:
		return types.Value{Kind: types.KindBool, Bool: t}
	case float64:
		return types.Value{Kind: types.KindFloat64, Float64: t}
	case string:
		return types.Value{Kind: types.KindString, String: t}
	case []interface{}:
		arr := make([]types.Value, 0, len(t))
		for _, item := range t {
			arr = append(arr, fromGeneric(item))
		}
		return types.Value{Kind: types.KindArray, Array: arr}
	case map[string]interface{}:
		entries := make([]types.MapEntry, 0, len(t))
		for k, val := range t {
			entries = append(entries, types.MapEntry{Key: k, Value: fromGeneric(val)})
		}
		return types.Value{Kind: types.KindMap, Map: entries}
	default:
		return types.Value{Kind: types.KindUnknown, Unknown: jsonStringify(t)}
	}
}

func jsonStringify(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
