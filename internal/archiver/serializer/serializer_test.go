// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

package serializer_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/serializer"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/types"
)

func TestSerializeRow_NaiveTimestampGetsZSuffix(t *testing.T) {
	s := serializer.New(zap.NewNop())

	naive := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	row := types.Row{
		{Name: "id", Value: types.Value{Kind: types.KindInt64, Int64: 1}},
		{Name: "created_at", Value: types.Value{Kind: types.KindTimestamp, Timestamp: naive, Naive: true}},
	}

	record, err := s.SerializeRow(row, "batch1", "db", "tbl", time.Now())
	require.NoError(t, err)

	out, err := json.Marshal(record)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Equal(t, "2024-01-02T03:04:05Z", decoded["created_at"])
	require.Equal(t, "batch1", decoded["_batch_id"])
	require.Equal(t, "db", decoded["_source_database"])
	require.Equal(t, "tbl", decoded["_source_table"])
}

func TestSerializeRow_AllKinds(t *testing.T) {
	s := serializer.New(zap.NewNop())

	id := uuid.New()
	row := types.Row{
		{Name: "n", Value: types.Value{Kind: types.KindNull}},
		{Name: "b", Value: types.Value{Kind: types.KindBool, Bool: true}},
		{Name: "dec", Value: types.Value{Kind: types.KindDecimal, Decimal: "12345678901234567890.123"}},
		{Name: "blob", Value: types.Value{Kind: types.KindBytes, Bytes: []byte("hi")}},
		{Name: "id", Value: types.Value{Kind: types.KindUUID, UUID: id}},
		{Name: "arr", Value: types.Value{Kind: types.KindArray, Array: []types.Value{
			{Kind: types.KindInt64, Int64: 1}, {Kind: types.KindInt64, Int64: 2},
		}}},
		{Name: "weird", Value: types.Value{Kind: types.KindUnknown, Unknown: "<obj>"}},
	}

	record, err := s.SerializeRow(row, "b", "db", "t", time.Now())
	require.NoError(t, err)

	out, err := json.Marshal(record)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Nil(t, decoded["n"])
	require.Equal(t, true, decoded["b"])
	require.Equal(t, "12345678901234567890.123", decoded["dec"])
	require.Equal(t, "aGk=", decoded["blob"])
	require.Equal(t, id.String(), decoded["id"])
	require.Equal(t, "<obj>", decoded["weird"])
}

func TestCountJSONLLines(t *testing.T) {
	require.Equal(t, 0, serializer.CountJSONLLines(nil))
	require.Equal(t, 1, serializer.CountJSONLLines([]byte("a")))
	require.Equal(t, 2, serializer.CountJSONLLines([]byte("a\nb")))
	require.Equal(t, 2, serializer.CountJSONLLines([]byte("a\nb\n")))
}

func TestToJSONL_LineCountMatchesRowCount(t *testing.T) {
	s := serializer.New(zap.NewNop())
	rows := []types.Row{
		{{Name: "id", Value: types.Value{Kind: types.KindInt64, Int64: 1}}},
		{{Name: "id", Value: types.Value{Kind: types.KindInt64, Int64: 2}}},
		{{Name: "id", Value: types.Value{Kind: types.KindInt64, Int64: 3}}},
	}

	jsonl, err := s.ToJSONL(rows, "batch1", "db", "t", time.Now())
	require.NoError(t, err)
	require.Equal(t, len(rows), serializer.CountJSONLLines(jsonl))
}
