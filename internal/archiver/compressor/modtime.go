// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

package compressor

import "time"

// zeroTime returns the zero time.Time, used to zero out the gzip header's
// mtime field for reproducible output across runs at a fixed level.
func zeroTime() time.Time {
	return time.Time{}
}
