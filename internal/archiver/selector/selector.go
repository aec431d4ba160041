// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

// Package selector implements keyset-paginated batch selection over a
// source table: SELECT ... FOR UPDATE SKIP LOCKED ordered by (timestamp,
// primary key), the Go counterpart of original_source's batch selection
// logic embedded in archiver/main.py.
package selector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/dbutil"
	archiverrs "github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/errs"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/types"
)

// Selector fetches eligible rows from one source table using keyset
// pagination with a stable (timestamp, primary key) tiebreaker.
type Selector struct {
	db     *sql.DB
	log    *zap.Logger
	Schema string
	Table  string
	TSCol  string
	PKCol  string
	// Columns are the columns selected, in order; PKCol must be among them
	// so ExtractPrimaryKeys can locate the PK value.
	Columns []string
}

// New builds a Selector, validating schema/table/column identifiers per
// spec.md §4.7 before any query is ever built.
func New(db *sql.DB, log *zap.Logger, schemaName, table, tsCol, pkCol string, columns []string) (*Selector, error) {
	for _, id := range append([]string{schemaName, table, tsCol, pkCol}, columns...) {
		if err := dbutil.ValidateIdentifier(id); err != nil {
			return nil, archiverrs.Wrap(&archiverrs.Configuration, archiverrs.Context{"identifier": id}, err)
		}
	}
	return &Selector{
		db:      db,
		log:     log.Named("selector"),
		Schema:  schemaName,
		Table:   table,
		TSCol:   tsCol,
		PKCol:   pkCol,
		Columns: columns,
	}, nil
}

// qualifiedTable returns the double-quoted schema.table identifier.
func (s *Selector) qualifiedTable() (string, error) {
	return dbutil.QuoteQualified(s.Schema, s.Table)
}

func (s *Selector) selectList() (string, error) {
	return dbutil.QuoteIdentifierList(s.Columns)
}

// SelectBatch fetches at most batchSize eligible rows strictly before
// cutoff, starting after cursor (if cursor.Present), ordered by
// (timestamp_column, primary_key_column), locking them FOR UPDATE SKIP
// LOCKED so concurrent runs over disjoint keyset windows never deadlock.
func (s *Selector) SelectBatch(ctx context.Context, cutoff time.Time, cursor types.Cursor, batchSize int) ([]types.Row, error) {
	table, err := s.qualifiedTable()
	if err != nil {
		return nil, err
	}
	cols, err := s.selectList()
	if err != nil {
		return nil, err
	}
	tsCol, err := dbutil.QuoteIdentifier(s.TSCol)
	if err != nil {
		return nil, err
	}
	pkCol, err := dbutil.QuoteIdentifier(s.PKCol)
	if err != nil {
		return nil, err
	}

	var query string
	var args []interface{}
	if cursor.Present {
		query = fmt.Sprintf(
			`SELECT %s FROM %s WHERE %s < $1 AND (%s, %s) > ($2, $3) ORDER BY %s, %s LIMIT $4 FOR UPDATE SKIP LOCKED`,
			cols, table, tsCol, tsCol, pkCol, tsCol, pkCol)
		args = []interface{}{cutoff, cursor.LastTimestamp, cursor.LastPrimaryKey, batchSize}
	} else {
		query = fmt.Sprintf(
			`SELECT %s FROM %s WHERE %s < $1 ORDER BY %s, %s LIMIT $2 FOR UPDATE SKIP LOCKED`,
			cols, table, tsCol, tsCol, pkCol)
		args = []interface{}{cutoff, batchSize}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, archiverrs.Wrap(&archiverrs.Database, archiverrs.Context{
			"table": s.Table,
			"query": archiverrs.TruncateQuery(query, 200),
		}, err)
	}
	defer func() { _ = rows.Close() }()

	return scanRows(rows, s.Columns)
}

// CountEligible returns the number of rows strictly before cutoff, for
// observability only — it does not lock or select rows.
func (s *Selector) CountEligible(ctx context.Context, cutoff time.Time) (int64, error) {
	table, err := s.qualifiedTable()
	if err != nil {
		return 0, err
	}
	tsCol, err := dbutil.QuoteIdentifier(s.TSCol)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s < $1`, table, tsCol)
	var count int64
	if err := s.db.QueryRowContext(ctx, query, cutoff).Scan(&count); err != nil {
		return 0, archiverrs.Wrap(&archiverrs.Database, archiverrs.Context{"table": s.Table}, err)
	}
	return count, nil
}

// CalculateCutoffDate returns now (UTC) minus retentionDays minus
// safetyBufferDays, per spec.md §4.7.
func CalculateCutoffDate(now time.Time, retentionDays, safetyBufferDays int) time.Time {
	return now.UTC().AddDate(0, 0, -retentionDays).AddDate(0, 0, -safetyBufferDays)
}

// ExtractPrimaryKeys returns the primary-key column value (as a string) of
// every row, in row order.
func ExtractPrimaryKeys(rows []types.Row, pkCol string) ([]string, error) {
	pks := make([]string, 0, len(rows))
	for i, row := range rows {
		v, ok := row.Get(pkCol)
		if !ok {
			return nil, archiverrs.New(&archiverrs.Serialization, archiverrs.Context{"row_index": i, "column": pkCol}, "primary key column missing from row")
		}
		pks = append(pks, valueAsString(v))
	}
	return pks, nil
}

// GetLastCursor returns the (timestamp, primary_key) of the last row in
// rows, i.e. the new watermark cursor after this batch — rows must already
// be in (timestamp, primary_key) order, which SelectBatch guarantees.
func GetLastCursor(rows []types.Row, tsCol, pkCol string) (types.Cursor, error) {
	if len(rows) == 0 {
		return types.Cursor{}, nil
	}
	last := rows[len(rows)-1]
	tsVal, ok := last.Get(tsCol)
	if !ok || tsVal.Kind != types.KindTimestamp {
		return types.Cursor{}, archiverrs.New(&archiverrs.Serialization, archiverrs.Context{"column": tsCol}, "timestamp column missing or wrong kind in last row")
	}
	pkVal, ok := last.Get(pkCol)
	if !ok {
		return types.Cursor{}, archiverrs.New(&archiverrs.Serialization, archiverrs.Context{"column": pkCol}, "primary key column missing in last row")
	}
	return types.Cursor{
		LastTimestamp:  tsVal.Timestamp,
		LastPrimaryKey: valueAsString(pkVal),
		Present:        true,
	}, nil
}

// GetTimestampRange returns the min and max value of tsCol across rows.
func GetTimestampRange(rows []types.Row, tsCol string) (min, max time.Time, err error) {
	if len(rows) == 0 {
		return time.Time{}, time.Time{}, archiverrs.New(&archiverrs.Serialization, nil, "cannot compute timestamp range of empty batch")
	}
	for i, row := range rows {
		v, ok := row.Get(tsCol)
		if !ok || v.Kind != types.KindTimestamp {
			return time.Time{}, time.Time{}, archiverrs.New(&archiverrs.Serialization, archiverrs.Context{"row_index": i, "column": tsCol}, "timestamp column missing or wrong kind")
		}
		if i == 0 || v.Timestamp.Before(min) {
			min = v.Timestamp
		}
		if i == 0 || v.Timestamp.After(max) {
			max = v.Timestamp
		}
	}
	return min, max, nil
}

func valueAsString(v types.Value) string {
	switch v.Kind {
	case types.KindString:
		return v.String
	case types.KindUUID:
		return v.UUID.String()
	case types.KindInt64:
		return fmt.Sprintf("%d", v.Int64)
	case types.KindDecimal:
		return v.Decimal
	default:
		return fmt.Sprintf("%v", v)
	}
}
