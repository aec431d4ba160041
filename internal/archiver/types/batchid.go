// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// BatchID computes the deterministic 16-hex-character batch identifier:
// first 16 hex chars of sha256(database|table|batch_number).
func BatchID(database, table string, batchNumber int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", database, table, batchNumber)))
	return hex.EncodeToString(sum[:])[:16]
}
