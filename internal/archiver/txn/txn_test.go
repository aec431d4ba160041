// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

package txn_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/txn"
)

func TestRunInTransaction_CommitsOnSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL statement_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	mgr := txn.New(db, 30*time.Second, zap.NewNop())
	err = mgr.RunInTransaction(context.Background(), func(ctx context.Context, tx *txn.Tx) error {
		_, execErr := tx.ExecContext(ctx, "DELETE FROM events WHERE id = ANY($1)", pq1())
		return execErr
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func pq1() interface{} { return pq.Array([]string{"1"}) }

func TestRunInTransaction_RollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL statement_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	mgr := txn.New(db, 30*time.Second, zap.NewNop())
	err = mgr.RunInTransaction(context.Background(), func(ctx context.Context, tx *txn.Tx) error {
		return errors.New("boom")
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithSavepoint_ReleasesOnSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL statement_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`SAVEPOINT "sp_1"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`RELEASE SAVEPOINT "sp_1"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	mgr := txn.New(db, 30*time.Second, zap.NewNop())
	err = mgr.RunInTransaction(context.Background(), func(ctx context.Context, tx *txn.Tx) error {
		return tx.WithSavepoint(ctx, "", func(ctx context.Context) error { return nil })
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithSavepoint_RollsBackToSavepointOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL statement_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`SAVEPOINT "sp_1"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`ROLLBACK TO SAVEPOINT "sp_1"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	mgr := txn.New(db, 30*time.Second, zap.NewNop())
	err = mgr.RunInTransaction(context.Background(), func(ctx context.Context, tx *txn.Tx) error {
		return tx.WithSavepoint(ctx, "", func(ctx context.Context) error { return errors.New("inner failure") })
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
