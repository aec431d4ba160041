// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

package schema_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/schema"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/types"
)

func TestCompare_NoPreviousSchemaReportsNoDrift(t *testing.T) {
	d := schema.NewDriftDetector(false, zap.NewNop())
	current := &types.TableSchema{Columns: []types.Column{{Name: "id", DataType: "bigint"}}}

	drift, err := d.Compare(current, nil, "db", "events")
	require.NoError(t, err)
	require.False(t, drift.HasDrift)
	require.Empty(t, drift.Changes)
}

func TestCompare_DetectsColumnAddAndRemove(t *testing.T) {
	d := schema.NewDriftDetector(false, zap.NewNop())
	previous := &types.TableSchema{Columns: []types.Column{
		{Name: "id", DataType: "bigint"},
		{Name: "legacy", DataType: "text"},
	}}
	current := &types.TableSchema{Columns: []types.Column{
		{Name: "id", DataType: "bigint"},
		{Name: "new_col", DataType: "text"},
	}}

	drift, err := d.Compare(current, previous, "db", "events")
	require.NoError(t, err)
	require.True(t, drift.HasDrift)
	require.Contains(t, drift.ColumnAdditions, "new_col")
	require.Contains(t, drift.ColumnRemovals, "legacy")
}

func TestCompare_DetectsTypeChange(t *testing.T) {
	d := schema.NewDriftDetector(false, zap.NewNop())
	previous := &types.TableSchema{Columns: []types.Column{{Name: "amount", DataType: "integer"}}}
	current := &types.TableSchema{Columns: []types.Column{{Name: "amount", DataType: "bigint"}}}

	drift, err := d.Compare(current, previous, "db", "events")
	require.NoError(t, err)
	require.True(t, drift.HasDrift)
	require.Len(t, drift.ColumnTypeChanges, 1)
	require.Equal(t, "integer", drift.ColumnTypeChanges[0].PreviousType)
	require.Equal(t, "bigint", drift.ColumnTypeChanges[0].CurrentType)
}

func TestCompare_PrimaryKeyChange(t *testing.T) {
	d := schema.NewDriftDetector(false, zap.NewNop())
	previous := &types.TableSchema{PrimaryKey: &types.PrimaryKey{Name: "events_pkey", Columns: []string{"id"}}}
	current := &types.TableSchema{PrimaryKey: &types.PrimaryKey{Name: "events_pkey", Columns: []string{"id", "shard"}}}

	drift, err := d.Compare(current, previous, "db", "events")
	require.NoError(t, err)
	require.True(t, drift.HasDrift)
	require.Len(t, drift.ConstraintChanges, 1)
	require.Equal(t, "primary_key", drift.ConstraintChanges[0].Type)
}

func TestCompare_NoChangesIsNotDrift(t *testing.T) {
	d := schema.NewDriftDetector(false, zap.NewNop())
	snap := &types.TableSchema{Columns: []types.Column{{Name: "id", DataType: "bigint", IsNullable: false}}}

	drift, err := d.Compare(snap, snap, "db", "events")
	require.NoError(t, err)
	require.False(t, drift.HasDrift)
}

func TestCompare_FailOnDriftReturnsVerificationError(t *testing.T) {
	d := schema.NewDriftDetector(true, zap.NewNop())
	previous := &types.TableSchema{Columns: []types.Column{{Name: "id", DataType: "bigint"}}}
	current := &types.TableSchema{Columns: []types.Column{{Name: "id", DataType: "bigint"}, {Name: "new_col", DataType: "text"}}}

	_, err := d.Compare(current, previous, "db", "events")
	require.Error(t, err)
}
