// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

package orchestrator

import (
	"fmt"
	"time"
)

func objectPrefix(database, schemaName, table string, day time.Time) string {
	return fmt.Sprintf("%s/%s.%s/year=%04d/month=%02d/day=%02d", database, schemaName, table, day.Year(), day.Month(), day.Day())
}

func archiveKey(database, schemaName, table, batchID string, day time.Time) string {
	return fmt.Sprintf("%s/%s.jsonl.gz", objectPrefix(database, schemaName, table, day), batchID)
}

func metadataKey(database, schemaName, table, batchID string, day time.Time) string {
	return fmt.Sprintf("%s/%s.metadata.json", objectPrefix(database, schemaName, table, day), batchID)
}

func manifestKey(database, schemaName, table, batchID string, day time.Time) string {
	return fmt.Sprintf("%s/%s.manifest.json", objectPrefix(database, schemaName, table, day), batchID)
}
