// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/checksum"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/compressor"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/dbutil"
	archiverrs "github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/errs"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/objectstore"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/selector"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/serializer"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/txn"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/types"
)

// batchResult is what processBatch hands back to the run loop.
type batchResult struct {
	cursor         types.Cursor
	recordCount    int64
	compressedSize int64
	batchID        string
}

// processBatch runs the fetch -> serialize -> compress -> upload ->
// verify -> delete -> sample-verify -> advance-watermark sequence for one
// keyset window, per spec.md §4.13's PROCESS_BATCH steps.
//
// schemaToEmbed is non-nil only for the first batch of a run that starts
// with no checkpointed batches, so the full schema snapshot travels with at
// most one metadata sidecar per run; a run resumed from a checkpoint embeds
// none.
func (o *Orchestrator) processBatch(ctx context.Context, batchNumber int64, rows []types.Row, schemaToEmbed *types.TableSchema) (*batchResult, error) {
	batchID := types.BatchID(o.t.Database, o.t.Table, batchNumber)
	log := o.log.With(zap.Int64("batch_number", batchNumber), zap.String("batch_id", batchID))
	now := time.Now().UTC()

	pks, err := selector.ExtractPrimaryKeys(rows, o.t.PKColumn)
	if err != nil {
		return nil, err
	}
	minTS, maxTS, err := selector.GetTimestampRange(rows, o.t.TSColumn)
	if err != nil {
		return nil, err
	}
	cursor, err := selector.GetLastCursor(rows, o.t.TSColumn, o.t.PKColumn)
	if err != nil {
		return nil, err
	}
	memoryCount := int64(len(rows))

	jsonl, err := o.t.Serializer.ToJSONL(rows, batchID, o.t.Database, o.t.Table, now)
	if err != nil {
		return nil, err
	}
	jsonlLines := int64(serializer.CountJSONLLines(jsonl))
	if jsonlLines != memoryCount {
		return nil, archiverrs.New(&archiverrs.Verification, archiverrs.Context{
			"batch_id": batchID, "memory_count": memoryCount, "jsonl_lines": jsonlLines,
		}, "serialized JSONL line count does not match in-memory row count")
	}
	jsonlChecksum := checksum.SHA256(jsonl)

	comp, err := compressor.New(o.t.CompressionLevel, o.log)
	if err != nil {
		return nil, err
	}
	compressed, uncompressedSize, compressedSize, err := comp.Compress(jsonl)
	if err != nil {
		return nil, err
	}
	compressedChecksum := checksum.SHA256(compressed)

	day := minTS
	archiveObjectKey := archiveKey(o.t.Database, o.t.Schema, o.t.Table, batchID, day)
	metadataObjectKey := metadataKey(o.t.Database, o.t.Schema, o.t.Table, batchID, day)
	manifestObjectKey := manifestKey(o.t.Database, o.t.Schema, o.t.Table, batchID, day)

	if o.t.DryRun {
		log.Info("dry run: skipping upload and delete", zap.Int64("record_count", memoryCount))
		return &batchResult{cursor: cursor, recordCount: memoryCount, compressedSize: int64(compressedSize), batchID: batchID}, nil
	}

	// The archive key is deterministic, so a retried batch may find its
	// archive already in the store; it is re-used only if its checksum
	// matches the freshly compressed bytes, and re-uploaded otherwise.
	exists, err := o.t.Object.ObjectExists(ctx, archiveObjectKey)
	if err != nil {
		return nil, err
	}
	reuse := false
	if exists {
		existing, err := o.t.Object.GetObjectBytes(ctx, archiveObjectKey)
		if err != nil {
			return nil, err
		}
		reuse = checksum.Equal(checksum.SHA256(existing), compressedChecksum)
	}
	if !reuse {
		if err := o.uploadArchive(ctx, archiveObjectKey, batchID, compressed); err != nil {
			return nil, err
		}
	}

	// Re-download and recompute the checksum to verify the upload made it
	// to the store intact before anything downstream trusts it.
	roundTripped, err := o.t.Object.GetObjectBytes(ctx, archiveObjectKey)
	if err != nil {
		return nil, err
	}
	if checksum.SHA256(roundTripped) != compressedChecksum {
		return nil, archiverrs.New(&archiverrs.Verification, archiverrs.Context{
			"batch_id": batchID, "key": archiveObjectKey,
		}, "uploaded object checksum does not match the object fetched back from the store")
	}

	sidecar := types.MetadataSidecar{
		Version: "1.0",
		BatchInfo: types.BatchInfo{
			Database: o.t.Database, Schema: o.t.Schema, Table: o.t.Table,
			BatchNumber: batchNumber, BatchID: batchID, ArchivedAt: now,
		},
		DataInfo: types.DataInfo{
			RecordCount:           memoryCount,
			UncompressedSizeBytes: int64(uncompressedSize),
			CompressedSizeBytes:   int64(compressedSize),
			CompressionRatio:      compressor.CompressionRatio(uncompressedSize, compressedSize),
		},
		Checksums: types.Checksums{
			JSONLSHA256:      jsonlChecksum,
			CompressedSHA256: compressedChecksum,
		},
		PrimaryKeys:    types.PrimaryKeysInfo{Count: int64(len(pks)), Sample: limitPKs(pks, 10)},
		TimestampRange: types.TimestampRange{Min: minTS, Max: maxTS},
		TableSchema:    schemaToEmbed,
	}
	sidecarBytes, err := json.Marshal(sidecar)
	if err != nil {
		return nil, archiverrs.Wrap(&archiverrs.Serialization, archiverrs.Context{"batch_id": batchID}, err)
	}
	if _, err := o.t.Object.UploadBytes(ctx, metadataObjectKey, sidecarBytes, "application/json"); err != nil {
		return nil, err
	}

	manifest := types.DeletionManifest{
		Version: "1.0",
		BatchInfo: types.BatchInfo{
			Database: o.t.Database, Schema: o.t.Schema, Table: o.t.Table,
			BatchNumber: batchNumber, BatchID: batchID, ArchivedAt: now,
		},
		ExpectedCount:    memoryCount,
		PrimaryKeysCount: int64(len(pks)),
		PrimaryKeys:      pks,
	}
	manifestBytes, err := json.Marshal(manifest)
	if err != nil {
		return nil, archiverrs.Wrap(&archiverrs.Serialization, archiverrs.Context{"batch_id": batchID}, err)
	}
	if _, err := o.t.Object.UploadBytes(ctx, manifestObjectKey, manifestBytes, "application/json"); err != nil {
		return nil, err
	}

	samplePKs, err := o.t.Sample.SelectSamples(pks)
	if err != nil {
		return nil, err
	}
	foundInArchive, missingFromArchive, err := o.t.Sample.ExtractFromArchive(compressed, o.t.PKColumn, samplePKs)
	if err != nil {
		return nil, err
	}
	if len(missingFromArchive) > 0 {
		return nil, archiverrs.New(&archiverrs.Verification, archiverrs.Context{
			"batch_id": batchID, "missing": missingFromArchive, "found": len(foundInArchive),
		}, "sampled primary keys missing from uploaded archive")
	}

	var deletedCount int64
	err = o.t.Txn.RunInTransaction(ctx, func(ctx context.Context, tx *txn.Tx) error {
		n, execErr := o.deleteBatchRows(ctx, tx, pks)
		if execErr != nil {
			return execErr
		}
		deletedCount = n
		return o.t.Verifier.VerifyCounts(n, memoryCount, memoryCount, archiverrs.Context{"batch_id": batchID})
	})
	if err != nil {
		return nil, err
	}
	manifest.DeletedCount = deletedCount
	updatedManifestBytes, err := json.Marshal(manifest)
	if err != nil {
		return nil, archiverrs.Wrap(&archiverrs.Serialization, archiverrs.Context{"batch_id": batchID}, err)
	}
	if _, err := o.t.Object.UploadBytes(ctx, manifestObjectKey, updatedManifestBytes, "application/json"); err != nil {
		return nil, err
	}

	if err := o.t.Sample.VerifyAbsentFromSource(ctx, o.t.DB, o.t.Schema, o.t.Table, o.t.PKColumn, samplePKs); err != nil {
		return nil, err
	}

	if err := o.t.Watermark.Save(ctx, o.t.Database, o.t.Schema, o.t.Table, cursor.LastTimestamp, cursor.LastPrimaryKey); err != nil {
		return nil, err
	}

	log.Info("batch archived", zap.Int64("records", memoryCount), zap.Int("compressed_bytes", compressedSize))
	return &batchResult{cursor: cursor, recordCount: memoryCount, compressedSize: int64(compressedSize), batchID: batchID}, nil
}

// uploadArchive uploads a compressed batch archive, routing anything at or
// above the multipart threshold through UploadMultipart instead of a single
// PutObject call.
func (o *Orchestrator) uploadArchive(ctx context.Context, key, batchID string, compressed []byte) error {
	size := int64(len(compressed))
	if !objectstore.NeedsMultipart(size) {
		_, err := o.t.Object.UploadBytes(ctx, key, compressed, "application/gzip")
		return err
	}

	journalPath := filepath.Join(os.TempDir(), batchID+".multipart.journal.json")
	_, err := o.t.Object.UploadMultipart(ctx, key, bytes.NewReader(compressed), size, journalPath)
	return err
}

// deleteBatchRows deletes exactly the rows named by pks, the same set
// recorded in the deletion manifest uploaded moments earlier.
func (o *Orchestrator) deleteBatchRows(ctx context.Context, tx *txn.Tx, pks []string) (int64, error) {
	qualified, err := dbutil.QuoteQualified(o.t.Schema, o.t.Table)
	if err != nil {
		return 0, err
	}
	pkCol, err := dbutil.QuoteIdentifier(o.t.PKColumn)
	if err != nil {
		return 0, err
	}
	query := "DELETE FROM " + qualified + " WHERE " + pkCol + " = ANY($1)"
	result, err := tx.ExecContext(ctx, query, pq.Array(pks))
	if err != nil {
		return 0, archiverrs.Wrap(&archiverrs.Database, archiverrs.Context{
			"query": archiverrs.TruncateQuery(query, 200),
		}, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, archiverrs.Wrap(&archiverrs.Database, nil, err)
	}
	return n, nil
}

func limitPKs(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

// decodeTableSchema unmarshals a previously-captured schema snapshot.
func decodeTableSchema(data []byte) (*types.TableSchema, error) {
	var schema types.TableSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, archiverrs.Wrap(&archiverrs.Serialization, nil, err)
	}
	return &schema, nil
}
