// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

// Package schema captures table schema snapshots from the Postgres system
// catalog and diffs them across archival runs, the Go counterpart of
// original_source's schema_drift.py.
package schema

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	archiverrs "github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/errs"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/types"
)

// Detector captures TableSchema snapshots from information_schema / pg_catalog.
type Detector struct {
	db  *sql.DB
	log *zap.Logger
}

// New builds a Detector over an open *sql.DB.
func New(db *sql.DB, log *zap.Logger) *Detector {
	return &Detector{db: db, log: log.Named("schema")}
}

// Capture queries columns, primary key, foreign keys, indexes and
// check/unique constraints for schema.table and assembles a TableSchema.
func (d *Detector) Capture(ctx context.Context, schemaName, table string) (*types.TableSchema, error) {
	cols, err := d.columns(ctx, schemaName, table)
	if err != nil {
		return nil, err
	}
	pk, err := d.primaryKey(ctx, schemaName, table)
	if err != nil {
		return nil, err
	}
	fks, err := d.foreignKeys(ctx, schemaName, table)
	if err != nil {
		return nil, err
	}
	idx, err := d.indexes(ctx, schemaName, table)
	if err != nil {
		return nil, err
	}
	cons, err := d.constraints(ctx, schemaName, table)
	if err != nil {
		return nil, err
	}

	return &types.TableSchema{
		Columns:     cols,
		PrimaryKey:  pk,
		ForeignKeys: fks,
		Indexes:     idx,
		Constraints: cons,
	}, nil
}

func (d *Detector) columns(ctx context.Context, schemaName, table string) ([]types.Column, error) {
	const query = `
SELECT column_name, data_type, is_nullable, column_default, ordinal_position
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`

	rows, err := d.db.QueryContext(ctx, query, schemaName, table)
	if err != nil {
		return nil, archiverrs.Wrap(&archiverrs.Database, archiverrs.Context{"schema": schemaName, "table": table}, err)
	}
	defer func() { _ = rows.Close() }()

	var cols []types.Column
	for rows.Next() {
		var (
			name, dataType, nullable string
			def                      sql.NullString
			position                 int
		)
		if err := rows.Scan(&name, &dataType, &nullable, &def, &position); err != nil {
			return nil, archiverrs.Wrap(&archiverrs.Database, archiverrs.Context{"table": table}, err)
		}
		cols = append(cols, types.Column{
			Name:       name,
			DataType:   dataType,
			IsNullable: nullable == "YES",
			Default:    def.String,
			Position:   position,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, archiverrs.Wrap(&archiverrs.Database, archiverrs.Context{"table": table}, err)
	}
	return cols, nil
}

func (d *Detector) primaryKey(ctx context.Context, schemaName, table string) (*types.PrimaryKey, error) {
	const query = `
SELECT tc.constraint_name, kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
WHERE tc.table_schema = $1 AND tc.table_name = $2 AND tc.constraint_type = 'PRIMARY KEY'
ORDER BY kcu.ordinal_position`

	rows, err := d.db.QueryContext(ctx, query, schemaName, table)
	if err != nil {
		return nil, archiverrs.Wrap(&archiverrs.Database, archiverrs.Context{"table": table}, err)
	}
	defer func() { _ = rows.Close() }()

	var pk *types.PrimaryKey
	for rows.Next() {
		var name, column string
		if err := rows.Scan(&name, &column); err != nil {
			return nil, archiverrs.Wrap(&archiverrs.Database, archiverrs.Context{"table": table}, err)
		}
		if pk == nil {
			pk = &types.PrimaryKey{Name: name}
		}
		pk.Columns = append(pk.Columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, archiverrs.Wrap(&archiverrs.Database, archiverrs.Context{"table": table}, err)
	}
	return pk, nil
}

func (d *Detector) foreignKeys(ctx context.Context, schemaName, table string) ([]types.ForeignKey, error) {
	const query = `
SELECT
  tc.constraint_name,
  kcu.column_name,
  ccu.table_name AS ref_table,
  ccu.column_name AS ref_column
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage ccu
  ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
WHERE tc.table_schema = $1 AND tc.table_name = $2 AND tc.constraint_type = 'FOREIGN KEY'
ORDER BY tc.constraint_name, kcu.ordinal_position`

	rows, err := d.db.QueryContext(ctx, query, schemaName, table)
	if err != nil {
		return nil, archiverrs.Wrap(&archiverrs.Database, archiverrs.Context{"table": table}, err)
	}
	defer func() { _ = rows.Close() }()

	byName := map[string]*types.ForeignKey{}
	var order []string
	for rows.Next() {
		var name, column, refTable, refColumn string
		if err := rows.Scan(&name, &column, &refTable, &refColumn); err != nil {
			return nil, archiverrs.Wrap(&archiverrs.Database, archiverrs.Context{"table": table}, err)
		}
		fk, ok := byName[name]
		if !ok {
			fk = &types.ForeignKey{ConstraintName: name, RefTable: refTable}
			byName[name] = fk
			order = append(order, name)
		}
		fk.Columns = append(fk.Columns, column)
		fk.RefColumns = append(fk.RefColumns, refColumn)
	}
	if err := rows.Err(); err != nil {
		return nil, archiverrs.Wrap(&archiverrs.Database, archiverrs.Context{"table": table}, err)
	}

	fks := make([]types.ForeignKey, 0, len(order))
	for _, name := range order {
		fks = append(fks, *byName[name])
	}
	return fks, nil
}

func (d *Detector) indexes(ctx context.Context, schemaName, table string) ([]types.Index, error) {
	const query = `
SELECT
  i.relname AS index_name,
  a.attname AS column_name,
  ix.indisunique AS is_unique,
  array_position(ix.indkey, a.attnum) AS col_position
FROM pg_index ix
JOIN pg_class t ON t.oid = ix.indrelid
JOIN pg_class i ON i.oid = ix.indexrelid
JOIN pg_namespace n ON n.oid = t.relnamespace
JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
WHERE n.nspname = $1 AND t.relname = $2
ORDER BY i.relname, col_position`

	rows, err := d.db.QueryContext(ctx, query, schemaName, table)
	if err != nil {
		return nil, archiverrs.Wrap(&archiverrs.Database, archiverrs.Context{"table": table}, err)
	}
	defer func() { _ = rows.Close() }()

	byName := map[string]*types.Index{}
	var order []string
	for rows.Next() {
		var name, column string
		var unique bool
		var pos int
		if err := rows.Scan(&name, &column, &unique, &pos); err != nil {
			return nil, archiverrs.Wrap(&archiverrs.Database, archiverrs.Context{"table": table}, err)
		}
		idx, ok := byName[name]
		if !ok {
			idx = &types.Index{Name: name, Unique: unique}
			byName[name] = idx
			order = append(order, name)
		}
		idx.Columns = append(idx.Columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, archiverrs.Wrap(&archiverrs.Database, archiverrs.Context{"table": table}, err)
	}

	out := make([]types.Index, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out, nil
}

func (d *Detector) constraints(ctx context.Context, schemaName, table string) ([]types.Constraint, error) {
	const query = `
SELECT con.conname, con.contype, pg_get_constraintdef(con.oid)
FROM pg_constraint con
JOIN pg_class t ON t.oid = con.conrelid
JOIN pg_namespace n ON n.oid = t.relnamespace
WHERE n.nspname = $1 AND t.relname = $2 AND con.contype IN ('c', 'u')
ORDER BY con.conname`

	rows, err := d.db.QueryContext(ctx, query, schemaName, table)
	if err != nil {
		return nil, archiverrs.Wrap(&archiverrs.Database, archiverrs.Context{"table": table}, err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.Constraint
	for rows.Next() {
		var name, kind, def string
		if err := rows.Scan(&name, &kind, &def); err != nil {
			return nil, archiverrs.Wrap(&archiverrs.Database, archiverrs.Context{"table": table}, err)
		}
		kindName := "check"
		if kind == "u" {
			kindName = "unique"
		}
		out = append(out, types.Constraint{Name: name, Type: kindName, Definition: def})
	}
	if err := rows.Err(); err != nil {
		return nil, archiverrs.Wrap(&archiverrs.Database, archiverrs.Context{"table": table}, err)
	}
	return out, nil
}
