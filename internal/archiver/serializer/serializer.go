// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

// Package serializer converts rows into canonical JSON and JSONL, the Go
// counterpart of original_source's archiver/serializer.py.
package serializer

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	archiverrs "github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/errs"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/types"
)

// Serializer converts rows to canonical JSON objects and JSONL buffers.
type Serializer struct {
	log *zap.Logger
}

// New builds a Serializer.
func New(log *zap.Logger) *Serializer {
	return &Serializer{log: log.Named("serializer")}
}

// SerializeRow converts a row plus the four injected metadata fields into a
// JSON-marshalable ordered map, preserving row column order and appending
// the metadata fields last.
func (s *Serializer) SerializeRow(row types.Row, batchID, database, table string, archivedAt time.Time) (orderedMap, error) {
	out := make(orderedMap, 0, len(row)+4)
	for _, cv := range row {
		value, err := s.serializeValue(cv.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, entry{key: cv.Name, value: value})
	}
	out = append(out,
		entry{key: "_archived_at", value: archivedAt.UTC().Format(time.RFC3339Nano)},
		entry{key: "_batch_id", value: batchID},
		entry{key: "_source_database", value: database},
		entry{key: "_source_table", value: table},
	)
	return out, nil
}

func (s *Serializer) serializeValue(v types.Value) (interface{}, error) {
	switch v.Kind {
	case types.KindNull:
		return nil, nil
	case types.KindBool:
		return v.Bool, nil
	case types.KindInt64:
		return v.Int64, nil
	case types.KindFloat64:
		return v.Float64, nil
	case types.KindDecimal:
		return v.Decimal, nil
	case types.KindString:
		return v.String, nil
	case types.KindBytes:
		return base64.StdEncoding.EncodeToString(v.Bytes), nil
	case types.KindTimestamp:
		return serializeTimestamp(v), nil
	case types.KindDate:
		return v.Timestamp.Format("2006-01-02"), nil
	case types.KindTime:
		return v.Timestamp.Format("15:04:05.999999999"), nil
	case types.KindUUID:
		return v.UUID.String(), nil
	case types.KindArray:
		arr := make([]interface{}, 0, len(v.Array))
		for _, item := range v.Array {
			sv, err := s.serializeValue(item)
			if err != nil {
				return nil, err
			}
			arr = append(arr, sv)
		}
		return arr, nil
	case types.KindMap:
		m := make(orderedMap, 0, len(v.Map))
		for _, me := range v.Map {
			sv, err := s.serializeValue(me.Value)
			if err != nil {
				return nil, err
			}
			m = append(m, entry{key: me.Key, value: sv})
		}
		return m, nil
	case types.KindUnknown:
		s.log.Warn("unknown row value type, falling back to string representation",
			zap.String("value_preview", preview(v.Unknown)))
		return v.Unknown, nil
	default:
		return nil, archiverrs.New(&archiverrs.Serialization, nil, "unrecognized value kind %d", v.Kind)
	}
}

// serializeTimestamp formats a timestamp per spec.md §4.1: timezone-aware
// values use their offset, naive values are emitted with a trailing "Z" and
// must not be reinterpreted as local time.
func serializeTimestamp(v types.Value) string {
	if v.Naive {
		// RFC3339Nano already appends a zone; format without one and append
		// the literal "Z" so the wall-clock value is left untouched.
		return v.Timestamp.Format("2006-01-02T15:04:05.999999999") + "Z"
	}
	return v.Timestamp.Format(time.RFC3339Nano)
}

func preview(s string) string {
	if len(s) <= 100 {
		return s
	}
	return s[:100]
}

// entry is one key/value pair of an orderedMap.
type entry struct {
	key   string
	value interface{}
}

// orderedMap marshals to a JSON object preserving insertion order, since
// Go's map type does not guarantee key order and the spec only requires a
// superset of the row's fields, not a specific order.
type orderedMap []entry

// MarshalJSON implements json.Marshaler for orderedMap.
func (m orderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(e.key)
		if err != nil {
			return nil, err
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valueBytes, err := json.Marshal(e.value)
		if err != nil {
			return nil, err
		}
		buf.Write(valueBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ToJSONL serializes a batch's rows to newline-delimited JSON bytes.
func (s *Serializer) ToJSONL(rows []types.Row, batchID, database, table string, archivedAt time.Time) ([]byte, error) {
	var buf bytes.Buffer
	for i, row := range rows {
		record, err := s.SerializeRow(row, batchID, database, table, archivedAt)
		if err != nil {
			return nil, archiverrs.Wrap(&archiverrs.Serialization, archiverrs.Context{"row_index": i}, err)
		}
		line, err := json.Marshal(record)
		if err != nil {
			return nil, archiverrs.Wrap(&archiverrs.Serialization, archiverrs.Context{"row_index": i}, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	out := buf.Bytes()
	// Trim the final trailing newline so the output carries no trailing
	// delimiter; CountJSONLLines counts records the same either way.
	if len(out) > 0 && out[len(out)-1] == '\n' {
		out = out[:len(out)-1]
	}
	return out, nil
}

// CountJSONLLines counts records in JSONL data: the number of '\n'
// occurrences, plus one if the buffer is non-empty and doesn't end in '\n'.
func CountJSONLLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	count := bytes.Count(data, []byte{'\n'})
	if data[len(data)-1] != '\n' {
		count++
	}
	return count
}
