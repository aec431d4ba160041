// Copyright (C) 2026 labsbykora
// See LICENSE for copying information.

// Package compressor gzip-encodes and decodes archive payloads, the Go
// counterpart of original_source's archiver/compressor.py.
package compressor

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	archiverrs "github.com/labsbykora/audit-table-archiver-sub001/internal/archiver/errs"
)

// Compressor gzip-compresses and decompresses byte buffers at a configured level.
type Compressor struct {
	level int
	log   *zap.Logger
}

// New builds a Compressor. level must be in [1,9]; 6 is the spec's default.
func New(level int, log *zap.Logger) (*Compressor, error) {
	if level < 1 || level > 9 {
		return nil, archiverrs.New(&archiverrs.Configuration, archiverrs.Context{"level": level},
			"compression level must be between 1 and 9, got %d", level)
	}
	return &Compressor{level: level, log: log.Named("compressor")}, nil
}

// Compress gzip-compresses data, returning the compressed bytes,
// uncompressed size, and compressed size. The gzip header's mtime is zeroed
// so compression is deterministic for a fixed level.
func (c *Compressor) Compress(data []byte) (compressed []byte, uncompressedSize, compressedSize int, err error) {
	uncompressedSize = len(data)

	var buf bytes.Buffer
	gz, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, 0, 0, archiverrs.Wrap(&archiverrs.Serialization, archiverrs.Context{"uncompressed_size": uncompressedSize}, err)
	}
	gz.ModTime = modTimeZero
	if _, err := gz.Write(data); err != nil {
		return nil, 0, 0, archiverrs.Wrap(&archiverrs.Serialization, archiverrs.Context{"uncompressed_size": uncompressedSize}, err)
	}
	if err := gz.Close(); err != nil {
		return nil, 0, 0, archiverrs.Wrap(&archiverrs.Serialization, archiverrs.Context{"uncompressed_size": uncompressedSize}, err)
	}

	compressed = buf.Bytes()
	compressedSize = len(compressed)

	ratio := 0.0
	if uncompressedSize > 0 {
		ratio = (1 - float64(compressedSize)/float64(uncompressedSize)) * 100
	}

	c.log.Debug("compression completed",
		zap.Int("uncompressed_size", uncompressedSize),
		zap.Int("compressed_size", compressedSize),
		zap.Float64("compression_ratio_pct", ratio),
		zap.Int("level", c.level),
	)

	return compressed, uncompressedSize, compressedSize, nil
}

// CompressionRatio returns the percentage reduction achieved by compression.
func CompressionRatio(uncompressedSize, compressedSize int) float64 {
	if uncompressedSize == 0 {
		return 0
	}
	return (1 - float64(compressedSize)/float64(uncompressedSize)) * 100
}

// Decompress gzip-decompresses data, failing with a Serialization-class
// error on truncated or corrupt input.
func (c *Compressor) Decompress(compressed []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, archiverrs.Wrap(&archiverrs.Serialization, archiverrs.Context{"compressed_size": len(compressed)},
			fmt.Errorf("decompression failed: %w", err))
	}
	defer func() { _ = reader.Close() }()

	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, archiverrs.Wrap(&archiverrs.Serialization, archiverrs.Context{"compressed_size": len(compressed)},
			fmt.Errorf("decompression failed: %w", err))
	}
	return out, nil
}

var modTimeZero = zeroTime()
