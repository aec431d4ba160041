// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

// Package watermark persists the keyset cursor — the durable
// (last_timestamp, last_primary_key) pair — for one (database, table),
// object-store backed, so the next run knows where to resume.
package watermark

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	archiverrs "github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/errs"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/objectstore"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/types"
)

// objectStore is the subset of *objectstore.Client the watermark store
// needs; accepting the interface rather than the concrete type keeps this
// package testable without a live S3-compatible endpoint.
type objectStore interface {
	ObjectExists(ctx context.Context, key string) (bool, error)
	GetObjectBytes(ctx context.Context, key string) ([]byte, error)
	UploadBytes(ctx context.Context, key string, data []byte, contentType string) (objectstore.UploadResult, error)
}

// Store loads and saves watermarks via an object-store client.
type Store struct {
	client objectStore
	log    *zap.Logger
}

// New builds a watermark Store.
func New(client objectStore, log *zap.Logger) *Store {
	return &Store{client: client, log: log.Named("watermark")}
}

func key(database, schemaName, table string) string {
	return fmt.Sprintf("%s/%s.%s/watermark.json", database, schemaName, table)
}

// Load returns the persisted watermark for (database, table), or
// (nil, nil) if one has never been written — the first run's cursor is
// absent, per spec.md §4.8.
func (s *Store) Load(ctx context.Context, database, schemaName, table string) (*types.Watermark, error) {
	k := key(database, schemaName, table)
	exists, err := s.client.ObjectExists(ctx, k)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	data, err := s.client.GetObjectBytes(ctx, k)
	if err != nil {
		return nil, err
	}

	var w types.Watermark
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, archiverrs.Wrap(&archiverrs.Serialization, archiverrs.Context{"database": database, "table": table}, err)
	}
	return &w, nil
}

// Save writes a new watermark for (database, table). Callers must ensure
// the new cursor is lexicographically >= the previous one (monotone
// watermark invariant); Save itself does not re-read to check.
func (s *Store) Save(ctx context.Context, database, schemaName, table string, lastTimestamp time.Time, lastPrimaryKey string) error {
	w := types.Watermark{
		Database:       database,
		Table:          table,
		LastTimestamp:  lastTimestamp,
		LastPrimaryKey: lastPrimaryKey,
		UpdatedAt:      time.Now().UTC(),
	}
	data, err := json.Marshal(w)
	if err != nil {
		return archiverrs.Wrap(&archiverrs.Serialization, archiverrs.Context{"database": database, "table": table}, err)
	}

	_, err = s.client.UploadBytes(ctx, key(database, schemaName, table), data, "application/json")
	if err != nil {
		return err
	}
	s.log.Debug("watermark saved", zap.String("database", database), zap.String("table", table),
		zap.Time("last_timestamp", lastTimestamp), zap.String("last_primary_key", lastPrimaryKey))
	return nil
}

// ToCursor converts a loaded watermark (which may be nil, meaning absent)
// into a types.Cursor for the selector.
func ToCursor(w *types.Watermark) types.Cursor {
	if w == nil {
		return types.Cursor{}
	}
	return types.Cursor{LastTimestamp: w.LastTimestamp, LastPrimaryKey: w.LastPrimaryKey, Present: true}
}
