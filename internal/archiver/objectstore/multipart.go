// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

package objectstore

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"os"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"

	archiverrs "github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/errs"
)

const (
	multipartThreshold = 100 * 1024 * 1024       // files >= 100MB use multipart
	minPartSize        = 5 * 1024 * 1024         // 5MB
	maxPartSize         = 5 * 1024 * 1024 * 1024 // 5GB cap
	maxSinglePart       = 5 * 1024 * 1024 * 1024 // single part > 5GB forces multipart
)

// NeedsMultipart reports whether a file of the given size should use
// multipart upload: size >= 100MB, or a single part would exceed 5GB.
func NeedsMultipart(size int64) bool {
	return size >= multipartThreshold || size > maxSinglePart
}

// PartSize computes the multipart part size: max(5MB, ceil(size/10000)),
// capped at 5GB.
func PartSize(size int64) int64 {
	part := int64(math.Ceil(float64(size) / 10000))
	if part < minPartSize {
		part = minPartSize
	}
	if part > maxPartSize {
		part = maxPartSize
	}
	return part
}

// MultipartState is the journaled state of an in-progress multipart upload,
// persisted to disk after each part so a crashed upload resumes from the
// first missing part on restart.
type MultipartState struct {
	UploadID     string   `json:"upload_id"`
	Key          string   `json:"key"`
	PartSize     int64    `json:"part_size"`
	TotalParts   int      `json:"total_parts"`
	UploadedParts []int   `json:"uploaded_parts"`
	ETags        []string `json:"etags"` // parallel to UploadedParts
}

func (s *MultipartState) save(journalPath string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(journalPath, data, 0o600)
}

func loadMultipartState(journalPath string) (*MultipartState, error) {
	data, err := os.ReadFile(journalPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var state MultipartState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// UploadMultipart uploads reader's content (of the given total size) as a
// multipart upload, resuming from journalPath if a prior attempt left state
// there. On terminal failure it aborts the multipart upload and removes the
// journal.
func (c *Client) UploadMultipart(ctx context.Context, key string, reader io.ReaderAt, size int64, journalPath string) (UploadResult, error) {
	resolved := c.resolveKey(key)
	core := &minio.Core{Client: c.minio}

	state, err := loadMultipartState(journalPath)
	if err != nil {
		return UploadResult{}, archiverrs.Wrap(&archiverrs.ObjectStore, archiverrs.Context{"key": resolved}, err)
	}

	partSize := PartSize(size)
	totalParts := int(math.Ceil(float64(size) / float64(partSize)))

	if state == nil {
		c.rateLimiter.Acquire(1, true)
		uploadID, err := core.NewMultipartUpload(ctx, c.cfg.Bucket, resolved, minio.PutObjectOptions{})
		if err != nil {
			return UploadResult{}, archiverrs.Wrap(&archiverrs.ObjectStore, archiverrs.Context{"key": resolved}, err)
		}
		state = &MultipartState{UploadID: uploadID, Key: resolved, PartSize: partSize, TotalParts: totalParts}
		if err := state.save(journalPath); err != nil {
			return UploadResult{}, archiverrs.Wrap(&archiverrs.ObjectStore, archiverrs.Context{"key": resolved}, err)
		}
	}

	uploadedSet := make(map[int]bool, len(state.UploadedParts))
	etagByPart := make(map[int]string, len(state.UploadedParts))
	for i, p := range state.UploadedParts {
		uploadedSet[p] = true
		if i < len(state.ETags) {
			etagByPart[p] = state.ETags[i]
		}
	}

	for partNum := 1; partNum <= state.TotalParts; partNum++ {
		if uploadedSet[partNum] {
			continue
		}

		offset := int64(partNum-1) * state.PartSize
		length := state.PartSize
		if remaining := size - offset; length > remaining {
			length = remaining
		}

		section := io.NewSectionReader(reader, offset, length)

		c.rateLimiter.Acquire(1, true)
		var part minio.ObjectPart
		err := withRetry(ctx, c.log, c.cfg.MaxRetries, c.rateLimiter, func() error {
			var partErr error
			part, partErr = core.PutObjectPart(ctx, c.cfg.Bucket, resolved, state.UploadID, partNum, section, length, minio.PutObjectPartOptions{})
			return partErr
		})
		if err != nil {
			_ = core.AbortMultipartUpload(ctx, c.cfg.Bucket, resolved, state.UploadID)
			_ = os.Remove(journalPath)
			return UploadResult{}, archiverrs.Wrap(&archiverrs.ObjectStore, archiverrs.Context{"key": resolved, "part": partNum}, err)
		}

		state.UploadedParts = append(state.UploadedParts, partNum)
		state.ETags = append(state.ETags, part.ETag)
		if err := state.save(journalPath); err != nil {
			return UploadResult{}, archiverrs.Wrap(&archiverrs.ObjectStore, archiverrs.Context{"key": resolved}, err)
		}
	}

	completeParts := make([]minio.CompletePart, 0, state.TotalParts)
	for partNum := 1; partNum <= state.TotalParts; partNum++ {
		completeParts = append(completeParts, minio.CompletePart{PartNumber: partNum, ETag: etagByPartFinal(state, partNum)})
	}

	info, err := core.CompleteMultipartUpload(ctx, c.cfg.Bucket, resolved, state.UploadID, completeParts, minio.PutObjectOptions{})
	if err != nil {
		_ = core.AbortMultipartUpload(ctx, c.cfg.Bucket, resolved, state.UploadID)
		_ = os.Remove(journalPath)
		return UploadResult{}, archiverrs.Wrap(&archiverrs.ObjectStore, archiverrs.Context{"key": resolved}, err)
	}

	_ = os.Remove(journalPath)
	c.log.Debug("multipart upload completed", zap.String("key", resolved), zap.Int("parts", state.TotalParts), zap.String("etag", info.ETag))

	return UploadResult{Bucket: c.cfg.Bucket, Key: resolved, Size: size}, nil
}

func etagByPartFinal(state *MultipartState, partNum int) string {
	for i, p := range state.UploadedParts {
		if p == partNum && i < len(state.ETags) {
			return state.ETags[i]
		}
	}
	return ""
}
