// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

// Package lock implements mutually exclusive claims on (database, table)
// via a Postgres session-scoped advisory lock or a lock file. The file lock
// has a heartbeat goroutine that extends the claim's TTL while held; the
// advisory lock lives as long as its pinned connection and has no heartbeat.
package lock

import (
	"context"
	"database/sql"
	"time"

	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/types"
)

// Manager is the common interface both lock variants implement.
type Manager interface {
	// Acquire attempts a non-blocking claim on key, returning the acquired
	// Lock or an error if the key is already held elsewhere.
	Acquire(ctx context.Context, key string) (*Lock, error)
	// Release gives up a held lock. Idempotent: releasing an already
	// released (or never-acquired) lock is not an error.
	Release(ctx context.Context, l *Lock) error
	// StartHeartbeat keeps l alive while ctx is not done and returns a stop
	// function. FileManager launches a goroutine that periodically extends
	// l's expiry; AdvisoryManager's is a no-op.
	StartHeartbeat(ctx context.Context, l *Lock) (stop func())
}

// Lock is an acquired claim, opaque to callers beyond its record.
type Lock struct {
	Key    string
	Record types.LockRecord

	// id is the DB advisory-lock numeric key, set only by AdvisoryManager.
	id int64
	// conn is the pinned connection holding a session-scoped advisory
	// lock, set only by AdvisoryManager.
	conn *sql.Conn
}

const (
	// DefaultTTL is the default time a lock is considered valid without a
	// heartbeat extension before another acquirer may take it over.
	DefaultTTL = 3600 * time.Second
	// DefaultHeartbeatInterval is how often StartHeartbeat extends expiry.
	DefaultHeartbeatInterval = 30 * time.Second
)
