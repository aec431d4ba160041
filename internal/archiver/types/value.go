// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

// Package types holds the archiver's data model: the tagged row-value union,
// rows, batches, and the JSON-facing metadata/manifest/watermark/checkpoint
// structures described in the spec's data model section.
package types

import (
	"time"

	"github.com/google/uuid"
)

// ValueKind tags the populated field of a Value.
type ValueKind int

// Value kinds, one per spec.md §3 row value type.
const (
	KindNull ValueKind = iota
	KindBool
	KindInt64
	KindFloat64
	KindDecimal
	KindString
	KindBytes
	KindTimestamp
	KindDate
	KindTime
	KindUUID
	KindArray
	KindMap
	KindUnknown
)

// Value is a tagged union over the row-value types the serializer must
// dispatch on. Naive (zoneless) timestamps set Naive=true; the serializer
// appends a trailing "Z" to them without reinterpreting the wall-clock value.
type Value struct {
	Kind ValueKind

	Bool      bool
	Int64     int64
	Float64   float64
	Decimal   string // arbitrary-precision decimal, string-backed
	String    string
	Bytes     []byte
	Timestamp time.Time
	Naive     bool // true if the source value carried no timezone
	UUID      uuid.UUID
	Array     []Value
	Map       []MapEntry
	Unknown   string // fallback string representation for unrecognized types
}

// MapEntry is one key/value pair of a nested structured value; a slice
// (rather than a Go map) preserves insertion order the way JSON/JSONB
// columns are re-serialized.
type MapEntry struct {
	Key   string
	Value Value
}

// ColumnValue is one named value within a Row.
type ColumnValue struct {
	Name  string
	Value Value
}

// Row is an ordered column_name -> value mapping, as read from the database
// driver in column order.
type Row []ColumnValue

// Get returns the value for a column name and whether it was found.
func (r Row) Get(name string) (Value, bool) {
	for _, cv := range r {
		if cv.Name == name {
			return cv.Value, true
		}
	}
	return Value{}, false
}

// IsNull reports whether the value is SQL NULL.
func (v Value) IsNull() bool { return v.Kind == KindNull }
