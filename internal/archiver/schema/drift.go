// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

package schema

import (
	"fmt"

	"go.uber.org/zap"

	archiverrs "github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/errs"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/types"
)

// ColumnTypeChange records a column whose data_type changed between runs.
type ColumnTypeChange struct {
	Column       string `json:"column"`
	PreviousType string `json:"previous_type"`
	CurrentType  string `json:"current_type"`
}

// ConstraintChange records an added, removed, or altered constraint.
type ConstraintChange struct {
	Type       string `json:"type"`
	Constraint string `json:"constraint,omitempty"`
	Previous   string `json:"previous,omitempty"`
	Current    string `json:"current,omitempty"`
}

// Drift is the result of comparing two TableSchema snapshots.
type Drift struct {
	HasDrift          bool               `json:"has_drift"`
	Changes           []string           `json:"changes"`
	ColumnAdditions   []string           `json:"column_additions"`
	ColumnRemovals    []string           `json:"column_removals"`
	ColumnTypeChanges []ColumnTypeChange `json:"column_type_changes"`
	ConstraintChanges []ConstraintChange `json:"constraint_changes"`
}

// DriftDetector diffs successive TableSchema snapshots.
type DriftDetector struct {
	FailOnDrift bool
	log         *zap.Logger
}

// NewDriftDetector builds a DriftDetector; failOnDrift turns any detected
// drift into a verification error instead of a recorded warning.
func NewDriftDetector(failOnDrift bool, log *zap.Logger) *DriftDetector {
	return &DriftDetector{FailOnDrift: failOnDrift, log: log.Named("schema_drift")}
}

// Compare diffs current against previous (nil previous means "first archival
// run" and always reports no drift). If FailOnDrift is set and drift is
// found, it returns a Verification-class error; otherwise drift is only
// recorded in the returned Drift.
func (d *DriftDetector) Compare(current *types.TableSchema, previous *types.TableSchema, database, table string) (Drift, error) {
	if previous == nil {
		d.log.Info("no previous schema found, first archival run", zap.String("database", database), zap.String("table", table))
		return Drift{
			Changes:           []string{},
			ColumnAdditions:   []string{},
			ColumnRemovals:    []string{},
			ColumnTypeChanges: []ColumnTypeChange{},
			ConstraintChanges: []ConstraintChange{},
		}, nil
	}

	currentCols := columnsByName(current.Columns)
	previousCols := columnsByName(previous.Columns)

	var changes []string
	var additions, removals []string
	var typeChanges []ColumnTypeChange
	var constraintChanges []ConstraintChange

	for name := range currentCols {
		if _, ok := previousCols[name]; !ok {
			additions = append(additions, name)
			changes = append(changes, fmt.Sprintf("Column added: %s", name))
		}
	}
	for name := range previousCols {
		if _, ok := currentCols[name]; !ok {
			removals = append(removals, name)
			changes = append(changes, fmt.Sprintf("Column removed: %s", name))
		}
	}
	for name, curCol := range currentCols {
		prevCol, ok := previousCols[name]
		if !ok {
			continue
		}
		if curCol.DataType != prevCol.DataType {
			typeChanges = append(typeChanges, ColumnTypeChange{Column: name, PreviousType: prevCol.DataType, CurrentType: curCol.DataType})
			changes = append(changes, fmt.Sprintf("Column type changed: %s (%s -> %s)", name, prevCol.DataType, curCol.DataType))
		}
		if curCol.IsNullable != prevCol.IsNullable {
			changes = append(changes, fmt.Sprintf("Column nullable changed: %s (%v -> %v)", name, prevCol.IsNullable, curCol.IsNullable))
		}
	}

	curPK := primaryKeyString(current.PrimaryKey)
	prevPK := primaryKeyString(previous.PrimaryKey)
	if curPK != prevPK {
		constraintChanges = append(constraintChanges, ConstraintChange{Type: "primary_key", Previous: prevPK, Current: curPK})
		changes = append(changes, fmt.Sprintf("Primary key changed: %s -> %s", prevPK, curPK))
	}

	currentFKs := foreignKeysByName(current.ForeignKeys)
	previousFKs := foreignKeysByName(previous.ForeignKeys)
	for name := range currentFKs {
		if _, ok := previousFKs[name]; !ok {
			constraintChanges = append(constraintChanges, ConstraintChange{Type: "foreign_key_added", Constraint: name})
			changes = append(changes, fmt.Sprintf("Foreign key added: %s", name))
		}
	}
	for name := range previousFKs {
		if _, ok := currentFKs[name]; !ok {
			constraintChanges = append(constraintChanges, ConstraintChange{Type: "foreign_key_removed", Constraint: name})
			changes = append(changes, fmt.Sprintf("Foreign key removed: %s", name))
		}
	}

	currentIdx := indexesByName(current.Indexes)
	previousIdx := indexesByName(previous.Indexes)
	for name := range currentIdx {
		if _, ok := previousIdx[name]; !ok {
			changes = append(changes, fmt.Sprintf("Index added: %s", name))
		}
	}
	for name := range previousIdx {
		if _, ok := currentIdx[name]; !ok {
			changes = append(changes, fmt.Sprintf("Index removed: %s", name))
		}
	}

	drift := Drift{
		HasDrift:          len(changes) > 0,
		Changes:           nonNilStrings(changes),
		ColumnAdditions:   nonNilStrings(additions),
		ColumnRemovals:    nonNilStrings(removals),
		ColumnTypeChanges: typeChanges,
		ConstraintChanges: constraintChanges,
	}

	if !drift.HasDrift {
		d.log.Debug("no schema drift detected", zap.String("database", database), zap.String("table", table))
		return drift, nil
	}

	d.log.Warn("schema drift detected",
		zap.String("database", database), zap.String("table", table),
		zap.Int("change_count", len(changes)),
		zap.Int("column_additions", len(additions)),
		zap.Int("column_removals", len(removals)),
		zap.Int("type_changes", len(typeChanges)),
		zap.Int("constraint_changes", len(constraintChanges)))

	if d.FailOnDrift {
		return drift, archiverrs.New(&archiverrs.Verification, archiverrs.Context{
			"database": database,
			"table":    table,
			"changes":  changes,
		}, "schema drift detected: %d change(s) found", len(changes))
	}

	return drift, nil
}

func columnsByName(cols []types.Column) map[string]types.Column {
	m := make(map[string]types.Column, len(cols))
	for _, c := range cols {
		m[c.Name] = c
	}
	return m
}

func foreignKeysByName(fks []types.ForeignKey) map[string]types.ForeignKey {
	m := make(map[string]types.ForeignKey, len(fks))
	for _, fk := range fks {
		m[fk.ConstraintName] = fk
	}
	return m
}

func indexesByName(idx []types.Index) map[string]types.Index {
	m := make(map[string]types.Index, len(idx))
	for _, i := range idx {
		m[i.Name] = i
	}
	return m
}

func primaryKeyString(pk *types.PrimaryKey) string {
	if pk == nil {
		return ""
	}
	return fmt.Sprintf("%s%v", pk.Name, pk.Columns)
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
