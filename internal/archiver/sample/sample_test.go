// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

package sample_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/sample"
)

func TestNew_RejectsInvalidParameters(t *testing.T) {
	_, err := sample.New(0, 10, 1000, zap.NewNop())
	require.Error(t, err)

	_, err = sample.New(0.01, 0, 1000, zap.NewNop())
	require.Error(t, err)

	_, err = sample.New(0.01, 100, 10, zap.NewNop())
	require.Error(t, err)
}

func TestSelectSamples_ClampsToMinAndMax(t *testing.T) {
	v, err := sample.New(0.01, 5, 10, zap.NewNop())
	require.NoError(t, err)

	pks := make([]string, 100)
	for i := range pks {
		pks[i] = string(rune('a' + i%26))
	}
	samples, err := v.SelectSamples(pks)
	require.NoError(t, err)
	// 1% of 100 = 1, clamped up to min_samples=5.
	require.Len(t, samples, 5)

	v, err = sample.New(0.5, 5, 10, zap.NewNop())
	require.NoError(t, err)
	samples, err = v.SelectSamples(pks)
	require.NoError(t, err)
	// 50% of 100 = 50, clamped down to max_samples=10.
	require.Len(t, samples, 10)
}

func TestSelectSamples_UsesAllWhenFewerThanMin(t *testing.T) {
	v, err := sample.New(0.5, 10, 1000, zap.NewNop())
	require.NoError(t, err)

	pks := []string{"a", "b", "c"}
	samples, err := v.SelectSamples(pks)
	require.NoError(t, err)
	require.Len(t, samples, 3)
}

func TestSelectSamples_RoundsSampleSizeUp(t *testing.T) {
	v, err := sample.New(0.05, 1, 1000, zap.NewNop())
	require.NoError(t, err)

	pks := make([]string, 101)
	for i := range pks {
		pks[i] = string(rune('a'+i%26)) + string(rune('0'+i/26))
	}
	samples, err := v.SelectSamples(pks)
	require.NoError(t, err)
	// 5% of 101 = 5.05, must round up to 6, not truncate to 5.
	require.Len(t, samples, 6)
}

func TestSelectSamples_EmptyInput(t *testing.T) {
	v, err := sample.New(0.5, 10, 1000, zap.NewNop())
	require.NoError(t, err)

	samples, err := v.SelectSamples(nil)
	require.NoError(t, err)
	require.Empty(t, samples)
}

func gzipJSONL(t *testing.T, lines []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	for i, line := range lines {
		if i > 0 {
			_, err := w.Write([]byte("\n"))
			require.NoError(t, err)
		}
		_, err := w.Write([]byte(line))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestExtractFromArchive_FindsPresentSamples(t *testing.T) {
	v, err := sample.New(0.5, 1, 10, zap.NewNop())
	require.NoError(t, err)

	archive := gzipJSONL(t, []string{
		`{"id":"1","value":"a"}`,
		`{"id":"2","value":"b"}`,
		`{"id":"3","value":"c"}`,
	})

	found, missing, err := v.ExtractFromArchive(archive, "id", []string{"1", "3", "missing-pk"})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"1", "3"}, found)
	require.Equal(t, []string{"missing-pk"}, missing)
}

func TestVerifyAbsentFromSource_PassesWhenNoneFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	v, err := sample.New(0.5, 1, 10, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT "id" FROM "public"\."events" WHERE "id" = ANY\(\$1\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	err = v.VerifyAbsentFromSource(context.Background(), db, "public", "events", "id", []string{"1", "2"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyAbsentFromSource_FailsWhenFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	v, err := sample.New(0.5, 1, 10, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT "id" FROM "public"\."events" WHERE "id" = ANY\(\$1\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("1"))

	err = v.VerifyAbsentFromSource(context.Background(), db, "public", "events", "id", []string{"1", "2"})
	require.Error(t, err)
}
