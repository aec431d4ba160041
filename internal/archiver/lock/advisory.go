// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

package lock

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/dbutil"
	archiverrs "github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/errs"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/types"
)

// AdvisoryManager claims a session-scoped Postgres advisory lock on
// hash(key). Acquisition is a non-blocking try-acquire that fails if the key
// is already held by another session; release happens either explicitly or
// when the session's connection closes.
type AdvisoryManager struct {
	db    *sql.DB
	owner string
	ttl   time.Duration
	log   *zap.Logger
}

// NewAdvisoryManager builds an AdvisoryManager. owner is a stable per-process
// identity recorded in the lock record for observability.
func NewAdvisoryManager(db *sql.DB, owner string, ttl time.Duration, log *zap.Logger) *AdvisoryManager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &AdvisoryManager{db: db, owner: owner, ttl: ttl, log: log.Named("lock_advisory")}
}

// Acquire tries pg_try_advisory_lock(hash(key)) on a dedicated connection
// held open for the lifetime of the lock (advisory locks are session-scoped:
// releasing the connection also releases the lock).
func (m *AdvisoryManager) Acquire(ctx context.Context, key string) (*Lock, error) {
	id := dbutil.PGAdvisoryLockKey(key)

	conn, err := m.db.Conn(ctx)
	if err != nil {
		return nil, archiverrs.Wrap(&archiverrs.Lock, archiverrs.Context{"key": key}, err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, id).Scan(&acquired); err != nil {
		_ = conn.Close()
		return nil, archiverrs.Wrap(&archiverrs.Lock, archiverrs.Context{"key": key}, err)
	}
	if !acquired {
		_ = conn.Close()
		return nil, archiverrs.New(&archiverrs.Lock, archiverrs.Context{"key": key, "lock_id": id},
			"advisory lock %q already held by another session", key)
	}

	now := time.Now().UTC()
	l := &Lock{
		Key: key,
		id:  id,
		Record: types.LockRecord{
			Key:        key,
			AcquiredAt: now,
			ExpiresAt:  now.Add(m.ttl),
			Owner:      m.owner,
		},
	}
	l.conn = conn
	m.log.Debug("advisory lock acquired", zap.String("key", key), zap.Int64("lock_id", id))
	return l, nil
}

// Release unlocks the advisory lock and closes the pinned connection.
// Idempotent: releasing a Lock with no pinned connection is a no-op.
func (m *AdvisoryManager) Release(ctx context.Context, l *Lock) error {
	if l == nil || l.conn == nil {
		return nil
	}
	_, err := l.conn.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, l.id)
	closeErr := l.conn.Close()
	l.conn = nil
	if err != nil {
		return archiverrs.Wrap(&archiverrs.Lock, archiverrs.Context{"key": l.Key}, err)
	}
	if closeErr != nil {
		return archiverrs.Wrap(&archiverrs.Lock, archiverrs.Context{"key": l.Key}, closeErr)
	}
	m.log.Debug("advisory lock released", zap.String("key", l.Key))
	return nil
}

// StartHeartbeat is a no-op for advisory locks: the lock's lifetime is tied
// to the pinned connection's liveness, not to a TTL field, so there is
// nothing to extend. It returns a stop function for interface symmetry with
// FileManager.
func (m *AdvisoryManager) StartHeartbeat(_ context.Context, _ *Lock) func() {
	return func() {}
}
