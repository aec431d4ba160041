// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

package types

import "time"

// Batch identifies a contiguous keyset window of rows from one source table.
type Batch struct {
	Database    string
	Schema      string
	Table       string
	BatchNumber int64
	BatchID     string // 16-hex first-16-of-sha256(db|table|batch_number)
	Rows        []Row
}

// Cursor is the keyset pagination position: (last_timestamp, last_primary_key).
type Cursor struct {
	LastTimestamp time.Time
	LastPrimaryKey string
	Present       bool
}

// Less reports whether c is lexicographically less than other, per the
// monotone-watermark invariant.
func (c Cursor) Less(other Cursor) bool {
	if c.LastTimestamp.Before(other.LastTimestamp) {
		return true
	}
	if c.LastTimestamp.After(other.LastTimestamp) {
		return false
	}
	return c.LastPrimaryKey < other.LastPrimaryKey
}

// Watermark is the durable cursor persisted between runs for one (database, table).
type Watermark struct {
	Database       string    `json:"database"`
	Table          string    `json:"table"`
	LastTimestamp  time.Time `json:"last_timestamp"`
	LastPrimaryKey string    `json:"last_primary_key"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Checkpoint is resumable per-table archival progress.
type Checkpoint struct {
	BatchNumber      int64     `json:"batch_number"`
	LastTimestamp    time.Time `json:"last_timestamp"`
	LastPrimaryKey   string    `json:"last_primary_key"`
	RecordsArchived  int64     `json:"records_archived"`
	BatchesProcessed int64     `json:"batches_processed"`
	CheckpointTime   time.Time `json:"checkpoint_time"`
	BatchID          string    `json:"batch_id"`
}

// LockRecord is the persisted state of a distributed lock claim.
type LockRecord struct {
	Key       string    `json:"key"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Owner      string    `json:"owner"`
}

// Column describes one column of a table schema snapshot.
type Column struct {
	Name       string `json:"name"`
	DataType   string `json:"data_type"`
	IsNullable bool   `json:"is_nullable"`
	Default    string `json:"default,omitempty"`
	Position   int    `json:"position"`
}

// PrimaryKey is a named, ordered set of primary-key columns.
type PrimaryKey struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

// ForeignKey describes one foreign-key constraint.
type ForeignKey struct {
	ConstraintName  string   `json:"constraint_name"`
	Columns         []string `json:"columns"`
	RefTable        string   `json:"ref_table"`
	RefColumns      []string `json:"ref_columns"`
}

// Index describes one index on the table.
type Index struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique"`
}

// Constraint describes a check or unique constraint.
type Constraint struct {
	Name       string `json:"name"`
	Type       string `json:"type"` // "check" or "unique"
	Definition string `json:"definition"`
}

// TableSchema is the full schema snapshot captured per spec.md §3.
type TableSchema struct {
	Columns     []Column     `json:"columns"`
	PrimaryKey  *PrimaryKey  `json:"primary_key,omitempty"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
	Indexes     []Index      `json:"indexes,omitempty"`
	Constraints []Constraint `json:"constraints,omitempty"`
}

// BatchInfo is the batch_info section of the metadata sidecar.
type BatchInfo struct {
	Database    string    `json:"database"`
	Schema      string    `json:"schema"`
	Table       string    `json:"table"`
	BatchNumber int64     `json:"batch_number"`
	BatchID     string    `json:"batch_id"`
	ArchivedAt  time.Time `json:"archived_at"`
}

// DataInfo is the data_info section of the metadata sidecar.
type DataInfo struct {
	RecordCount           int64   `json:"record_count"`
	UncompressedSizeBytes int64   `json:"uncompressed_size_bytes"`
	CompressedSizeBytes   int64   `json:"compressed_size_bytes"`
	CompressionRatio      float64 `json:"compression_ratio"`
}

// Checksums is the checksums section of the metadata sidecar.
type Checksums struct {
	JSONLSHA256     string `json:"jsonl_sha256"`
	CompressedSHA256 string `json:"compressed_sha256"`
}

// PrimaryKeysInfo is the primary_keys section of the metadata sidecar.
type PrimaryKeysInfo struct {
	Count  int64    `json:"count"`
	Sample []string `json:"sample"`
}

// TimestampRange is the timestamp_range section of the metadata sidecar.
type TimestampRange struct {
	Min time.Time `json:"min"`
	Max time.Time `json:"max"`
}

// MetadataSidecar is the small JSON object uploaded alongside each archive.
type MetadataSidecar struct {
	Version        string          `json:"version"`
	BatchInfo      BatchInfo       `json:"batch_info"`
	DataInfo       DataInfo        `json:"data_info"`
	Checksums      Checksums       `json:"checksums"`
	PrimaryKeys    PrimaryKeysInfo `json:"primary_keys"`
	TimestampRange TimestampRange  `json:"timestamp_range"`
	TableSchema    *TableSchema    `json:"table_schema,omitempty"`
}

// DeletionManifest is uploaded before DELETE executes.
type DeletionManifest struct {
	Version         string   `json:"version"`
	BatchInfo       BatchInfo `json:"batch_info"`
	ExpectedCount   int64    `json:"expected_count"`
	DeletedCount    int64    `json:"deleted_count"`
	PrimaryKeysCount int64   `json:"primary_keys_count"`
	Warning         string   `json:"warning,omitempty"`
	PrimaryKeys     []string `json:"primary_keys"`
}
