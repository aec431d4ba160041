// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

// Package orchestrator implements the per-table archival state machine
// (C13) that composes the serializer, compressor, checksum, verifier,
// object-store client, schema detector, batch selector, watermark store,
// checkpoint store, distributed lock, sample verifier, and transaction
// manager into the end-to-end archival loop.
package orchestrator

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/checkpoint"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/lock"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/objectstore"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/sample"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/schema"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/selector"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/serializer"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/txn"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/types"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/verifier"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/watermark"
)

// State names the per-table state machine's states, for logging and the
// JSON run summary.
type State string

// States, per spec.md §4.13.
const (
	StateInit            State = "INIT"
	StateLocking         State = "LOCKING"
	StateSchema          State = "SCHEMA"
	StateLoadCheckpoint  State = "LOAD_CHECKPOINT"
	StateLoop            State = "LOOP"
	StateProcessBatch    State = "PROCESS_BATCH"
	StateDone            State = "DONE"
	StateFailed          State = "FAILED"
)

// objStore is the subset of *objectstore.Client the orchestrator needs.
type objStore interface {
	UploadBytes(ctx context.Context, key string, data []byte, contentType string) (objectstore.UploadResult, error)
	UploadMultipart(ctx context.Context, key string, reader io.ReaderAt, size int64, journalPath string) (objectstore.UploadResult, error)
	GetObjectBytes(ctx context.Context, key string) ([]byte, error)
	ObjectExists(ctx context.Context, key string) (bool, error)
}

// Table bundles everything the orchestrator needs to archive one
// (database, schema, table).
type Table struct {
	Database string
	Schema   string
	Table    string
	TSColumn string
	PKColumn string
	Columns  []string

	Cutoff             time.Time
	BatchSize          int
	CheckpointInterval int
	SleepBetweenBatches time.Duration
	DryRun             bool

	DB              *sql.DB
	Object          objStore
	SchemaDetector  *schema.Detector
	DriftDetector   *schema.DriftDetector
	Selector        *selector.Selector
	Watermark       *watermark.Store
	Checkpoint      *checkpoint.Store
	LockManager     lock.Manager
	LockKey         string
	LockTTL         time.Duration
	Sample          *sample.Verifier
	Txn             *txn.Manager
	Serializer      *serializer.Serializer
	CompressionLevel int
	Verifier        *verifier.Verifier

	Log *zap.Logger
}

// Stats is the per-table run summary reported to the CLI.
type Stats struct {
	Database         string
	Table            string
	State            State
	BatchesProcessed int64
	RecordsArchived  int64
	BytesUploaded    int64
	SchemaDrift      *schema.Drift
	StartedAt        time.Time
	FinishedAt       time.Time
	Err              error
}

// Orchestrator runs one Table's archival state machine to completion.
type Orchestrator struct {
	t   Table
	log *zap.Logger
}

// New builds an Orchestrator for one table.
func New(t Table) *Orchestrator {
	return &Orchestrator{t: t, log: t.Log.Named("orchestrator").With(zap.String("database", t.Database), zap.String("table", t.Table))}
}

// Run drives the table through INIT -> LOCKING -> SCHEMA ->
// LOAD_CHECKPOINT -> LOOP (-> PROCESS_BATCH)* -> DONE/FAILED.
func (o *Orchestrator) Run(ctx context.Context) *Stats {
	stats := &Stats{Database: o.t.Database, Table: o.t.Table, StartedAt: time.Now().UTC(), State: StateInit}

	o.log.Info("archival run starting", zap.Time("cutoff", o.t.Cutoff), zap.Bool("dry_run", o.t.DryRun))

	stats.State = StateLocking
	l, err := o.t.LockManager.Acquire(ctx, o.t.LockKey)
	if err != nil {
		return o.fail(stats, err)
	}
	heartbeatCtx, cancelHeartbeat := context.WithCancel(ctx)
	stopHeartbeat := o.t.LockManager.StartHeartbeat(heartbeatCtx, l)
	defer func() {
		stopHeartbeat()
		cancelHeartbeat()
		if releaseErr := o.t.LockManager.Release(context.Background(), l); releaseErr != nil {
			o.log.Error("failed to release lock", zap.Error(releaseErr))
		}
	}()

	stats.State = StateSchema
	currentSchema, previousSchema, err := o.captureSchema(ctx)
	if err != nil {
		return o.fail(stats, err)
	}
	drift, err := o.t.DriftDetector.Compare(currentSchema, previousSchema, o.t.Database, o.t.Table)
	if err != nil {
		return o.fail(stats, err)
	}
	stats.SchemaDrift = &drift

	stats.State = StateLoadCheckpoint
	cp, cursor, err := o.loadProgress(ctx)
	if err != nil {
		return o.fail(stats, err)
	}
	stats.BatchesProcessed = cp.BatchesProcessed
	stats.RecordsArchived = cp.RecordsArchived

	batchNumber := cp.BatchNumber
	firstBatch := cp.BatchesProcessed == 0

	for {
		select {
		case <-ctx.Done():
			return o.fail(stats, ctx.Err())
		default:
		}

		stats.State = StateLoop
		rows, err := o.t.Selector.SelectBatch(ctx, o.t.Cutoff, cursor, o.t.BatchSize)
		if err != nil {
			return o.fail(stats, err)
		}
		if len(rows) == 0 {
			stats.State = StateDone
			break
		}

		batchNumber++
		stats.State = StateProcessBatch

		var schemaForBatch *types.TableSchema
		if firstBatch {
			schemaForBatch = currentSchema
			firstBatch = false
		}

		result, err := o.processBatch(ctx, batchNumber, rows, schemaForBatch)
		if err != nil {
			return o.fail(stats, err)
		}

		cursor = result.cursor
		stats.BatchesProcessed++
		stats.RecordsArchived += result.recordCount
		stats.BytesUploaded += result.compressedSize

		if checkpoint.ShouldCheckpoint(batchNumber, o.t.CheckpointInterval) {
			cp := types.Checkpoint{
				BatchNumber:      batchNumber,
				LastTimestamp:    cursor.LastTimestamp,
				LastPrimaryKey:   cursor.LastPrimaryKey,
				RecordsArchived:  stats.RecordsArchived,
				BatchesProcessed: stats.BatchesProcessed,
				BatchID:          result.batchID,
			}
			if !o.t.DryRun {
				if err := o.t.Checkpoint.Save(ctx, o.t.Database, o.t.Schema, o.t.Table, cp); err != nil {
					return o.fail(stats, err)
				}
			}
		}

		if o.t.SleepBetweenBatches > 0 {
			time.Sleep(o.t.SleepBetweenBatches)
		}
	}

	if !o.t.DryRun {
		final := types.Checkpoint{
			BatchNumber:      batchNumber,
			LastTimestamp:    cursor.LastTimestamp,
			LastPrimaryKey:   cursor.LastPrimaryKey,
			RecordsArchived:  stats.RecordsArchived,
			BatchesProcessed: stats.BatchesProcessed,
		}
		if err := o.t.Checkpoint.Save(ctx, o.t.Database, o.t.Schema, o.t.Table, final); err != nil {
			return o.fail(stats, err)
		}
		if err := o.t.Checkpoint.Delete(ctx, o.t.Database, o.t.Schema, o.t.Table); err != nil {
			o.log.Warn("failed to delete checkpoint on completion", zap.Error(err))
		}
		if err := o.saveSchemaSnapshot(ctx, currentSchema); err != nil {
			return o.fail(stats, err)
		}
	}

	stats.FinishedAt = time.Now().UTC()
	o.log.Info("archival run completed",
		zap.Int64("batches", stats.BatchesProcessed), zap.Int64("records", stats.RecordsArchived))
	return stats
}

func (o *Orchestrator) fail(stats *Stats, err error) *Stats {
	stats.State = StateFailed
	stats.Err = err
	stats.FinishedAt = time.Now().UTC()
	o.log.Error("archival run failed", zap.Error(err))
	return stats
}

// captureSchema captures the current schema and loads the previous
// snapshot recorded on the prior run's first-batch metadata sidecar, if
// any. Absence of a previous snapshot (first-ever run) is not an error.
func (o *Orchestrator) captureSchema(ctx context.Context) (current, previous *types.TableSchema, err error) {
	current, err = o.t.SchemaDetector.Capture(ctx, o.t.Schema, o.t.Table)
	if err != nil {
		return nil, nil, err
	}

	data, err := o.t.Object.GetObjectBytes(ctx, schemaSnapshotKey(o.t.Database, o.t.Schema, o.t.Table))
	if err != nil {
		return current, nil, nil
	}
	if len(data) == 0 {
		return current, nil, nil
	}
	prev, err := decodeTableSchema(data)
	if err != nil {
		o.log.Warn("failed to decode previous schema snapshot, treating as absent", zap.Error(err))
		return current, nil, nil
	}
	return current, prev, nil
}

func schemaSnapshotKey(database, schemaName, table string) string {
	return database + "/" + schemaName + "." + table + "/schema_snapshot.json"
}

// saveSchemaSnapshot persists the schema captured at the start of this run
// so the next run's captureSchema has something to diff against.
func (o *Orchestrator) saveSchemaSnapshot(ctx context.Context, current *types.TableSchema) error {
	data, err := json.Marshal(current)
	if err != nil {
		return err
	}
	_, err = o.t.Object.UploadBytes(ctx, schemaSnapshotKey(o.t.Database, o.t.Schema, o.t.Table), data, "application/json")
	return err
}

// loadProgress loads the checkpoint and watermark, and derives the
// keyset cursor to resume from, per spec.md §4.13 LOAD_CHECKPOINT.
func (o *Orchestrator) loadProgress(ctx context.Context) (types.Checkpoint, types.Cursor, error) {
	cp, err := o.t.Checkpoint.Load(ctx, o.t.Database, o.t.Schema, o.t.Table)
	if err != nil {
		return types.Checkpoint{}, types.Cursor{}, err
	}

	w, err := o.t.Watermark.Load(ctx, o.t.Database, o.t.Schema, o.t.Table)
	if err != nil {
		return types.Checkpoint{}, types.Cursor{}, err
	}
	cursor := watermark.ToCursor(w)

	if cp == nil {
		return types.Checkpoint{}, cursor, nil
	}

	// The watermark is saved after every batch and the checkpoint only every
	// CheckpointInterval batches, so the checkpoint's cursor can lag the
	// watermark's; it is still preferred whenever the checkpoint carries one.
	if cp.LastPrimaryKey != "" || !cp.LastTimestamp.IsZero() {
		cursor = types.Cursor{LastTimestamp: cp.LastTimestamp, LastPrimaryKey: cp.LastPrimaryKey, Present: true}
	}
	return *cp, cursor, nil
}
