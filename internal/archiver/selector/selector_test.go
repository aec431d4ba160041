// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

package selector_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/selector"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/types"
)

func TestNew_RejectsInvalidIdentifier(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = selector.New(db, zap.NewNop(), "public", "events; DROP TABLE x", "created_at", "id", []string{"id", "created_at"})
	require.Error(t, err)
}

func TestSelectBatch_NoCursorUsesSimpleWhere(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	sel, err := selector.New(db, zap.NewNop(), "public", "events", "created_at", "id", []string{"id", "created_at"})
	require.NoError(t, err)

	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT "id", "created_at" FROM "public"\."events" WHERE "created_at" < \$1 ORDER BY "created_at", "id" LIMIT \$2 FOR UPDATE SKIP LOCKED`).
		WithArgs(cutoff, 100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).
			AddRow("1", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)))

	rows, err := sel.SelectBatch(context.Background(), cutoff, types.Cursor{}, 100)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectBatch_WithCursorUsesKeysetWhere(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	sel, err := selector.New(db, zap.NewNop(), "public", "events", "created_at", "id", []string{"id", "created_at"})
	require.NoError(t, err)

	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cursor := types.Cursor{LastTimestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), LastPrimaryKey: "42", Present: true}

	mock.ExpectQuery(`SELECT "id", "created_at" FROM "public"\."events" WHERE "created_at" < \$1 AND \("created_at", "id"\) > \(\$2, \$3\) ORDER BY "created_at", "id" LIMIT \$4 FOR UPDATE SKIP LOCKED`).
		WithArgs(cutoff, cursor.LastTimestamp, cursor.LastPrimaryKey, 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}))

	rows, err := sel.SelectBatch(context.Background(), cutoff, cursor, 50)
	require.NoError(t, err)
	require.Empty(t, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCalculateCutoffDate(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cutoff := selector.CalculateCutoffDate(now, 90, 1)
	require.Equal(t, time.Date(2025, 12, 9, 12, 0, 0, 0, time.UTC), cutoff)
}

func TestExtractPrimaryKeys(t *testing.T) {
	rows := []types.Row{
		{{Name: "id", Value: types.Value{Kind: types.KindString, String: "a"}}},
		{{Name: "id", Value: types.Value{Kind: types.KindString, String: "b"}}},
	}
	pks, err := selector.ExtractPrimaryKeys(rows, "id")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, pks)
}

func TestGetLastCursor(t *testing.T) {
	ts := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	rows := []types.Row{
		{{Name: "created_at", Value: types.Value{Kind: types.KindTimestamp, Timestamp: ts.Add(-time.Hour)}}, {Name: "id", Value: types.Value{Kind: types.KindString, String: "1"}}},
		{{Name: "created_at", Value: types.Value{Kind: types.KindTimestamp, Timestamp: ts}}, {Name: "id", Value: types.Value{Kind: types.KindString, String: "2"}}},
	}
	cursor, err := selector.GetLastCursor(rows, "created_at", "id")
	require.NoError(t, err)
	require.True(t, cursor.Present)
	require.Equal(t, ts, cursor.LastTimestamp)
	require.Equal(t, "2", cursor.LastPrimaryKey)
}

func TestGetLastCursor_EmptyBatch(t *testing.T) {
	cursor, err := selector.GetLastCursor(nil, "created_at", "id")
	require.NoError(t, err)
	require.False(t, cursor.Present)
}

func TestGetTimestampRange(t *testing.T) {
	t1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := []types.Row{
		{{Name: "created_at", Value: types.Value{Kind: types.KindTimestamp, Timestamp: t2}}},
		{{Name: "created_at", Value: types.Value{Kind: types.KindTimestamp, Timestamp: t1}}},
	}
	min, max, err := selector.GetTimestampRange(rows, "created_at")
	require.NoError(t, err)
	require.Equal(t, t1, min)
	require.Equal(t, t2, max)
}
