// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

// Package sample implements post-upload and post-delete sample
// verification: a uniform random subset of a batch's primary keys is
// confirmed present in the uploaded archive object, and — after the delete
// commits — confirmed absent from the source table. Grounded on
// original_source's sample_verifier.py.
package sample

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"math/big"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/compressor"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/dbutil"
	archiverrs "github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/errs"
)

// Verifier samples a batch's primary keys and checks their presence in the
// archive object, then their absence from the source after delete.
type Verifier struct {
	SamplePercentage float64
	MinSamples       int
	MaxSamples       int
	log              *zap.Logger
}

// New builds a Verifier; panics-free validation: invalid parameters return
// a configuration error from New rather than surfacing mid-run.
func New(samplePercentage float64, minSamples, maxSamples int, log *zap.Logger) (*Verifier, error) {
	if samplePercentage <= 0 || samplePercentage > 1 {
		return nil, archiverrs.New(&archiverrs.Configuration, nil, "sample percentage must be in (0, 1], got %v", samplePercentage)
	}
	if minSamples < 1 {
		return nil, archiverrs.New(&archiverrs.Configuration, nil, "min samples must be at least 1, got %d", minSamples)
	}
	if maxSamples < minSamples {
		return nil, archiverrs.New(&archiverrs.Configuration, nil, "max samples (%d) must be >= min samples (%d)", maxSamples, minSamples)
	}
	return &Verifier{SamplePercentage: samplePercentage, MinSamples: minSamples, MaxSamples: maxSamples, log: log.Named("sample_verifier")}, nil
}

// SelectSamples returns a uniform random subset of pks of size
// clamp(min_samples, ceil(pct*n), max_samples), or all of pks if that's
// smaller than the computed sample size.
func (v *Verifier) SelectSamples(pks []string) ([]string, error) {
	if len(pks) == 0 {
		return nil, nil
	}

	total := len(pks)
	size := int(math.Ceil(float64(total) * v.SamplePercentage))
	if size < v.MinSamples {
		size = v.MinSamples
	}
	if size > v.MaxSamples {
		size = v.MaxSamples
	}
	if size > total {
		size = total
	}

	indices, err := randomDistinctIndices(total, size)
	if err != nil {
		return nil, archiverrs.Wrap(&archiverrs.Verification, nil, err)
	}

	samples := make([]string, 0, size)
	for _, i := range indices {
		samples = append(samples, pks[i])
	}

	v.log.Debug("samples selected", zap.Int("total_count", total), zap.Int("sample_size", size))
	return samples, nil
}

// ExtractFromArchive decompresses a gzip'd JSONL archive and returns which of
// samplePKs are present, logging (not failing) any that are missing — a
// missing sample PK is reported by the caller as a verification error with
// the offending PKs, matching spec.md §4.11's upload-time check.
func (v *Verifier) ExtractFromArchive(compressedArchive []byte, pkField string, samplePKs []string) (found []string, missing []string, err error) {
	comp, err := compressor.New(6, v.log)
	if err != nil {
		return nil, nil, err
	}
	jsonl, err := comp.Decompress(compressedArchive)
	if err != nil {
		return nil, nil, archiverrs.Wrap(&archiverrs.Verification, archiverrs.Context{"compressed_size": len(compressedArchive)}, err)
	}

	remaining := make(map[string]bool, len(samplePKs))
	for _, pk := range samplePKs {
		remaining[pk] = true
	}

	scanner := bufio.NewScanner(bytes.NewReader(jsonl))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() && len(remaining) > 0 {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var record map[string]interface{}
		if jsonErr := json.Unmarshal(line, &record); jsonErr != nil {
			v.log.Warn("failed to parse JSONL line during sample verification", zap.Error(jsonErr))
			continue
		}
		pkValue, ok := record[pkField]
		if !ok {
			continue
		}
		pkStr := fmt.Sprintf("%v", pkValue)
		if remaining[pkStr] {
			found = append(found, pkStr)
			delete(remaining, pkStr)
		}
	}
	if scanErr := scanner.Err(); scanErr != nil {
		return nil, nil, archiverrs.Wrap(&archiverrs.Verification, nil, scanErr)
	}

	for pk := range remaining {
		missing = append(missing, pk)
	}
	if len(missing) > 0 {
		v.log.Warn("some sample primary keys not found in archive object", zap.Int("missing_count", len(missing)))
	}

	return found, missing, nil
}

// VerifyAbsentFromSource queries the source table for any of samplePKs and
// fails if it finds even one — rows were supposed to be deleted already.
func (v *Verifier) VerifyAbsentFromSource(ctx context.Context, db *sql.DB, schemaName, table, pkColumn string, samplePKs []string) error {
	if len(samplePKs) == 0 {
		v.log.Warn("no samples to verify absent from source")
		return nil
	}

	qualified, err := dbutil.QuoteQualified(schemaName, table)
	if err != nil {
		return err
	}
	qCol, err := dbutil.QuoteIdentifier(pkColumn)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ANY($1)`, qCol, qualified, qCol)
	rows, err := db.QueryContext(ctx, query, pq.Array(samplePKs))
	if err != nil {
		return archiverrs.Wrap(&archiverrs.Database, archiverrs.Context{"table": table}, err)
	}
	defer func() { _ = rows.Close() }()

	var foundPKs []string
	for rows.Next() {
		var pk string
		if err := rows.Scan(&pk); err != nil {
			return archiverrs.Wrap(&archiverrs.Database, archiverrs.Context{"table": table}, err)
		}
		foundPKs = append(foundPKs, pk)
	}
	if err := rows.Err(); err != nil {
		return archiverrs.Wrap(&archiverrs.Database, archiverrs.Context{"table": table}, err)
	}

	if len(foundPKs) > 0 {
		return archiverrs.New(&archiverrs.Verification, archiverrs.Context{
			"table":         table,
			"total_samples": len(samplePKs),
			"found_in_db":   len(foundPKs),
			"found_pks":     limit(foundPKs, 10),
		}, "sample verification failed: %d of %d sample primary keys found in database (should be 0)", len(foundPKs), len(samplePKs))
	}

	v.log.Debug("sample verification passed", zap.String("table", table), zap.Int("sample_count", len(samplePKs)))
	return nil
}

func limit(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

// randomDistinctIndices returns size distinct indices in [0, total) chosen
// uniformly at random, using crypto/rand (the Fisher-Yates partial shuffle).
func randomDistinctIndices(total, size int) ([]int, error) {
	pool := make([]int, total)
	for i := range pool {
		pool[i] = i
	}
	for i := 0; i < size; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(total-i)))
		if err != nil {
			return nil, err
		}
		j := i + int(n.Int64())
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:size], nil
}
