// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

package objectstore_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/objectstore"
)

func TestNeedsMultipart(t *testing.T) {
	require.False(t, objectstore.NeedsMultipart(1024))
	require.True(t, objectstore.NeedsMultipart(200*1024*1024))
}

func TestPartSize(t *testing.T) {
	// Small files always get the 5MB floor.
	require.Equal(t, int64(5*1024*1024), objectstore.PartSize(1024))

	// A 100GB file needs parts of ceil(size/10000) bytes.
	hundredGB := int64(100) * 1024 * 1024 * 1024
	want := int64(10737419) // ceil(100GB / 10000)
	require.Equal(t, want, objectstore.PartSize(hundredGB))
}
