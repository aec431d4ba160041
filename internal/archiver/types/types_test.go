// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

package types_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/types"
)

func TestRow_Get(t *testing.T) {
	row := types.Row{
		{Name: "id", Value: types.Value{Kind: types.KindString, String: "abc"}},
		{Name: "amount", Value: types.Value{Kind: types.KindFloat64, Float64: 1.5}},
	}

	v, ok := row.Get("amount")
	require.True(t, ok)
	require.Equal(t, 1.5, v.Float64)

	_, ok = row.Get("missing")
	require.False(t, ok)
}

func TestValue_IsNull(t *testing.T) {
	require.True(t, types.Value{Kind: types.KindNull}.IsNull())
	require.False(t, types.Value{Kind: types.KindString, String: "x"}.IsNull())
}

func TestCursor_Less(t *testing.T) {
	earlier := types.Cursor{LastTimestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), LastPrimaryKey: "z"}
	later := types.Cursor{LastTimestamp: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), LastPrimaryKey: "a"}
	require.True(t, earlier.Less(later))
	require.False(t, later.Less(earlier))

	sameTS1 := types.Cursor{LastTimestamp: earlier.LastTimestamp, LastPrimaryKey: "a"}
	sameTS2 := types.Cursor{LastTimestamp: earlier.LastTimestamp, LastPrimaryKey: "b"}
	require.True(t, sameTS1.Less(sameTS2))
}

func TestBatchID_IsDeterministicAndSixteenHex(t *testing.T) {
	id1 := types.BatchID("db1", "events", 42)
	id2 := types.BatchID("db1", "events", 42)
	require.Equal(t, id1, id2)
	require.Len(t, id1, 16)

	id3 := types.BatchID("db1", "events", 43)
	require.NotEqual(t, id1, id3)
}
