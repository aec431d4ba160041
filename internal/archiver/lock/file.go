// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

package lock

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	archiverrs "github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/errs"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/types"
)

// FileManager claims locks via a JSON file written to dir/<key>.lock. A
// preexisting file whose expires_at has passed is considered stale and
// silently replaced; otherwise acquisition fails.
type FileManager struct {
	dir               string
	owner             string
	ttl               time.Duration
	heartbeatInterval time.Duration
	log               *zap.Logger
}

// NewFileManager builds a FileManager rooted at dir (created if absent).
func NewFileManager(dir, owner string, ttl, heartbeatInterval time.Duration, log *zap.Logger) *FileManager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}
	return &FileManager{dir: dir, owner: owner, ttl: ttl, heartbeatInterval: heartbeatInterval, log: log.Named("lock_file")}
}

func (m *FileManager) path(key string) string {
	return filepath.Join(m.dir, key+".lock")
}

// Acquire writes a lock file for key, failing if an unexpired one already
// exists. A stale (expired) preexisting file is replaced.
func (m *FileManager) Acquire(_ context.Context, key string) (*Lock, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, archiverrs.Wrap(&archiverrs.Lock, archiverrs.Context{"key": key}, err)
	}

	p := m.path(key)
	if existing, err := readLockFile(p); err == nil && existing != nil {
		if time.Now().UTC().Before(existing.ExpiresAt) {
			return nil, archiverrs.New(&archiverrs.Lock, archiverrs.Context{"key": key, "owner": existing.Owner, "expires_at": existing.ExpiresAt},
				"lock %q held by %q until %s", key, existing.Owner, existing.ExpiresAt)
		}
		m.log.Warn("taking over stale lock", zap.String("key", key), zap.String("previous_owner", existing.Owner), zap.Time("expired_at", existing.ExpiresAt))
	}

	now := time.Now().UTC()
	record := types.LockRecord{
		Key:        key,
		AcquiredAt: now,
		ExpiresAt:  now.Add(m.ttl),
		Owner:      m.owner,
	}
	if err := writeLockFile(p, record); err != nil {
		return nil, archiverrs.Wrap(&archiverrs.Lock, archiverrs.Context{"key": key}, err)
	}

	m.log.Debug("file lock acquired", zap.String("key", key), zap.String("path", p))
	return &Lock{Key: key, Record: record}, nil
}

// Release removes the lock file. Idempotent: removing an already-removed
// file is not an error.
func (m *FileManager) Release(_ context.Context, l *Lock) error {
	if l == nil {
		return nil
	}
	if err := os.Remove(m.path(l.Key)); err != nil && !os.IsNotExist(err) {
		return archiverrs.Wrap(&archiverrs.Lock, archiverrs.Context{"key": l.Key}, err)
	}
	m.log.Debug("file lock released", zap.String("key", l.Key))
	return nil
}

// StartHeartbeat launches a goroutine extending l's expires_at by
// heartbeatInterval every heartbeatInterval until ctx is done or stop is
// called. Failure to keep up (process death) leaves expires_at in the past,
// which Acquire treats as a stale, takeable lock.
func (m *FileManager) StartHeartbeat(ctx context.Context, l *Lock) func() {
	stopCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(m.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C:
				l.Record.ExpiresAt = time.Now().UTC().Add(m.ttl)
				if err := writeLockFile(m.path(l.Key), l.Record); err != nil {
					m.log.Error("lock heartbeat failed", zap.String("key", l.Key), zap.Error(err))
				}
			}
		}
	}()
	return func() { close(stopCh) }
}

func readLockFile(path string) (*types.LockRecord, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var record types.LockRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func writeLockFile(path string, record types.LockRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
