// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

package watermark_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/objectstore"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/types"
	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/watermark"
)

// fakeStore is an in-memory object store stand-in for the watermark tests.
type fakeStore struct {
	objects map[string][]byte
}

func newFakeStore() *fakeStore { return &fakeStore{objects: map[string][]byte{}} }

func (f *fakeStore) ObjectExists(_ context.Context, key string) (bool, error) {
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeStore) GetObjectBytes(_ context.Context, key string) ([]byte, error) {
	return f.objects[key], nil
}

func (f *fakeStore) UploadBytes(_ context.Context, key string, data []byte, _ string) (objectstore.UploadResult, error) {
	f.objects[key] = data
	return objectstore.UploadResult{Key: key, Size: int64(len(data))}, nil
}

func TestLoad_AbsentReturnsNil(t *testing.T) {
	store := watermark.New(newFakeStore(), zap.NewNop())
	w, err := store.Load(context.Background(), "db1", "public", "events")
	require.NoError(t, err)
	require.Nil(t, w)
}

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	backend := newFakeStore()
	store := watermark.New(backend, zap.NewNop())
	ts := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(context.Background(), "db1", "public", "events", ts, "pk-123"))

	w, err := store.Load(context.Background(), "db1", "public", "events")
	require.NoError(t, err)
	require.NotNil(t, w)
	require.True(t, ts.Equal(w.LastTimestamp))
	require.Equal(t, "pk-123", w.LastPrimaryKey)
	require.Equal(t, "db1", w.Database)
	require.Equal(t, "events", w.Table)
}

func TestToCursor_NilWatermarkIsAbsentCursor(t *testing.T) {
	cursor := watermark.ToCursor(nil)
	require.False(t, cursor.Present)
}

func TestToCursor_PresentWatermark(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w := &types.Watermark{LastTimestamp: ts, LastPrimaryKey: "99"}
	cursor := watermark.ToCursor(w)
	require.True(t, cursor.Present)
	require.Equal(t, "99", cursor.LastPrimaryKey)
}
