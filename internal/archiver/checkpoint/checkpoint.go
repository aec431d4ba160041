// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

// Package checkpoint persists resumable per-table archival progress every
// checkpoint_interval batches and at run completion/failure.
package checkpoint

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

// objectStore is the subset of *objectstore.Client the checkpoint store
// needs.
type objectStore interface {
	ObjectExists(ctx context.Context, key string) (bool, error)
	GetObjectBytes(ctx context.Context, key string) ([]byte, error)
	UploadBytes(ctx context.Context, key string, data []byte, contentType string) (objectstore.UploadResult, error)
}

// deleter is implemented by object-store clients that can remove a key; kept
// separate from objectStore so callers that never delete don't need it.
type deleter interface {
	RemoveObject(ctx context.Context, key string) error
}

// Store loads, saves, and clears per-table checkpoints.
type Store struct {
	client objectStore
	log    *zap.Logger
}

// New builds a checkpoint Store.
func New(client objectStore, log *zap.Logger) *Store {
	return &Store{client: client, log: log.Named("checkpoint")}
}

func key(database, schemaName, table string) string {
	return fmt.Sprintf("%s/%s.%s/checkpoints/%s_%s.checkpoint.json", database, schemaName, table, database, table)
}

// Load returns the latest checkpoint for (database, schema, table), or
// (nil, nil) if none has ever been written — the orchestrator then starts
// from batch zero, with the watermark's cursor if one has been saved.
func (s *Store) Load(ctx context.Context, database, schemaName, table string) (*types.Checkpoint, error) {
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

	var cp types.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, archiverrs.Wrap(&archiverrs.Serialization, archiverrs.Context{"database": database, "table": table}, err)
	}
	return &cp, nil
}

// Save persists a checkpoint, overwriting any previous one for
// (database, schema, table).
func (s *Store) Save(ctx context.Context, database, schemaName, table string, cp types.Checkpoint) error {
	cp.CheckpointTime = time.Now().UTC()
	data, err := json.Marshal(cp)
	if err != nil {
		return archiverrs.Wrap(&archiverrs.Serialization, archiverrs.Context{"database": database, "table": table}, err)
	}

	if _, err := s.client.UploadBytes(ctx, key(database, schemaName, table), data, "application/json"); err != nil {
		return err
	}
	s.log.Debug("checkpoint saved", zap.String("database", database), zap.String("table", table),
		zap.Int64("batch_number", cp.BatchNumber), zap.Int64("records_archived", cp.RecordsArchived))
	return nil
}

// Delete removes the checkpoint for (database, schema, table) on
// successful run completion, per spec.md §4.9.
func (s *Store) Delete(ctx context.Context, database, schemaName, table string) error {
	d, ok := s.client.(deleter)
	if !ok {
		return nil
	}
	return d.RemoveObject(ctx, key(database, schemaName, table))
}

// ShouldCheckpoint reports whether batchNumber is a checkpoint boundary for
// the given interval (interval <= 0 disables periodic checkpointing; the
// orchestrator still checkpoints at run completion/failure explicitly).
func ShouldCheckpoint(batchNumber int64, interval int) bool {
	if interval <= 0 {
		return false
	}
	return batchNumber%int64(interval) == 0
}
