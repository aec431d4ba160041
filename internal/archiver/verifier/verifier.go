// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

// Package verifier implements the three-way count check and the
// primary-key set-equality check, the Go counterpart of
// original_source's archiver/verifier.py.
package verifier

import (
	"go.uber.org/zap"

	archiverrs "github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/errs"
)

// Verifier performs count and primary-key verification.
type Verifier struct {
	log *zap.Logger
}

// New builds a Verifier.
func New(log *zap.Logger) *Verifier {
	return &Verifier{log: log.Named("verifier")}
}

// VerifyCounts checks that db_count, memory_count, and store_count are all
// equal; on any inequality it reports which pair disagreed with all three
// values in context.
func (v *Verifier) VerifyCounts(dbCount, memoryCount, storeCount int64, ctx archiverrs.Context) error {
	base := archiverrs.Context{
		"db_count":     dbCount,
		"memory_count": memoryCount,
		"store_count":  storeCount,
	}
	for k, val := range ctx {
		base[k] = val
	}

	v.log.Debug("verifying counts",
		zap.Int64("db_count", dbCount), zap.Int64("memory_count", memoryCount), zap.Int64("store_count", storeCount))

	switch {
	case dbCount != memoryCount:
		return archiverrs.New(&archiverrs.Verification, base, "count mismatch: db count (%d) != memory count (%d)", dbCount, memoryCount)
	case memoryCount != storeCount:
		return archiverrs.New(&archiverrs.Verification, base, "count mismatch: memory count (%d) != store count (%d)", memoryCount, storeCount)
	case dbCount != storeCount:
		return archiverrs.New(&archiverrs.Verification, base, "count mismatch: db count (%d) != store count (%d)", dbCount, storeCount)
	}

	v.log.Debug("count verification passed", zap.Int64("count", dbCount))
	return nil
}

// VerifyPrimaryKeys checks order-independent set equality between fetched
// and delete primary keys; on mismatch it reports up to ten missing and ten
// extra keys.
func (v *Verifier) VerifyPrimaryKeys(fetchedPKs, deletePKs []string, ctx archiverrs.Context) error {
	fetchedSet := toSet(fetchedPKs)
	deleteSet := toSet(deletePKs)

	var missingInDelete, extraInDelete []string
	for pk := range fetchedSet {
		if !deleteSet[pk] {
			missingInDelete = append(missingInDelete, pk)
		}
	}
	for pk := range deleteSet {
		if !fetchedSet[pk] {
			extraInDelete = append(extraInDelete, pk)
		}
	}

	if len(missingInDelete) == 0 && len(extraInDelete) == 0 {
		v.log.Debug("primary key verification passed", zap.Int("count", len(fetchedPKs)))
		return nil
	}

	base := archiverrs.Context{
		"fetched_count":      len(fetchedPKs),
		"delete_count":       len(deletePKs),
		"missing_in_delete":  limit(missingInDelete, 10),
		"extra_in_delete":    limit(extraInDelete, 10),
	}
	for k, val := range ctx {
		base[k] = val
	}

	return archiverrs.New(&archiverrs.Verification, base,
		"primary key mismatch: %d missing in delete, %d extra in delete", len(missingInDelete), len(extraInDelete))
}

func toSet(keys []string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return set
}

func limit(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
