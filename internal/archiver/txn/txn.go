// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

// Package txn wraps the delete step in a transaction with a statement
// timeout, nested savepoints, and a background age monitor — the Go
// counterpart of original_source's transaction_manager.py.
package txn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	archiverrs "github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/errs"
)

// Manager runs one transaction at a time over a *sql.DB connection,
// enforcing a statement timeout and offering nested savepoints.
type Manager struct {
	db             *sql.DB
	timeout        time.Duration
	monitorTick    time.Duration
	log            *zap.Logger
}

// New builds a Manager. timeout bounds SET LOCAL statement_timeout for the
// wrapped transaction; monitorTick is how often the age monitor checks
// elapsed time (30s in original_source, kept as the default here).
func New(db *sql.DB, timeout time.Duration, log *zap.Logger) *Manager {
	return &Manager{db: db, timeout: timeout, monitorTick: 30 * time.Second, log: log.Named("transaction_manager")}
}

// Tx is a handle to one in-flight transaction, used to create savepoints.
type Tx struct {
	*sql.Tx
	savepointCount int64
	log            *zap.Logger
}

// nextSavepointName returns the next auto-generated savepoint name, sp_1, sp_2, ….
func (t *Tx) nextSavepointName() string {
	return fmt.Sprintf("sp_%d", atomic.AddInt64(&t.savepointCount, 1))
}

// RunInTransaction begins a transaction, sets SET LOCAL statement_timeout to
// m.timeout, starts a background age monitor (warns at 50% of timeout,
// errors at 100%), and invokes fn with a *Tx. On fn's error, the transaction
// is rolled back; otherwise it is committed. Any Postgres error surfaces
// wrapped as a Transaction-class error carrying the driver's SQLSTATE.
func (m *Manager) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	sqlTx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapPGError(err)
	}

	if _, err := sqlTx.ExecContext(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", m.timeout.Milliseconds())); err != nil {
		_ = sqlTx.Rollback()
		return wrapPGError(err)
	}

	tx := &Tx{Tx: sqlTx, log: m.log}

	monitorCtx, cancelMonitor := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.monitorAge(monitorCtx)
	}()

	m.log.Debug("transaction started", zap.Duration("timeout", m.timeout))

	fnErr := fn(ctx, tx)

	cancelMonitor()
	wg.Wait()

	if fnErr != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			m.log.Error("rollback failed", zap.Error(rbErr))
		}
		return wrapPGError(fnErr)
	}

	if err := sqlTx.Commit(); err != nil {
		m.log.Error("transaction failed", zap.Error(err))
		return wrapPGError(err)
	}

	m.log.Debug("transaction committed successfully")
	return nil
}

// monitorAge checks elapsed time every monitorTick, logging a warning at 50%
// of the configured timeout and an error at 100%, then stopping.
func (m *Manager) monitorAge(ctx context.Context) {
	start := time.Now()
	ticker := time.NewTicker(m.monitorTick)
	defer ticker.Stop()

	warnThreshold := time.Duration(float64(m.timeout) * 0.5)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			age := time.Since(start)
			if age > m.timeout {
				m.log.Error("transaction exceeded timeout", zap.Duration("age", age), zap.Duration("timeout", m.timeout))
				return
			}
			if age > warnThreshold {
				pct := float64(age) / float64(m.timeout) * 100
				m.log.Warn("transaction age approaching timeout", zap.Duration("age", age), zap.Duration("timeout", m.timeout), zap.Float64("percentage", pct))
			}
		}
	}
}

// WithSavepoint runs fn within a named savepoint (auto-named sp_N if name is
// empty), rolling back to the savepoint (not the whole transaction) on
// fn's error.
func (t *Tx) WithSavepoint(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if name == "" {
		name = t.nextSavepointName()
	}

	if _, err := t.ExecContext(ctx, "SAVEPOINT "+pq.QuoteIdentifier(name)); err != nil {
		return wrapPGError(err)
	}
	t.log.Debug("savepoint created", zap.String("savepoint", name))

	if err := fn(ctx); err != nil {
		if _, rbErr := t.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+pq.QuoteIdentifier(name)); rbErr != nil {
			t.log.Error("failed to rollback to savepoint", zap.String("savepoint", name), zap.Error(rbErr))
		} else {
			t.log.Debug("rolled back to savepoint", zap.String("savepoint", name))
		}
		return archiverrs.Wrap(&archiverrs.Transaction, archiverrs.Context{"savepoint": name}, err)
	}

	if _, err := t.ExecContext(ctx, "RELEASE SAVEPOINT "+pq.QuoteIdentifier(name)); err != nil {
		return wrapPGError(err)
	}
	t.log.Debug("savepoint released", zap.String("savepoint", name))
	return nil
}

// wrapPGError wraps err as a Transaction-class error, attaching the
// driver's SQLSTATE (pq.Error.Code) when available.
func wrapPGError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return archiverrs.Wrap(&archiverrs.Transaction, archiverrs.Context{"sqlstate": string(pqErr.Code)}, err)
	}
	return archiverrs.Wrap(&archiverrs.Transaction, nil, err)
}
