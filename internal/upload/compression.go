package upload

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"revit-server-backup/internal/config"
)

// Compressor wraps streams with one compression algorithm
type Compressor interface {
	Algorithm() config.CompressionAlgorithm
	Extension() string
	NewWriter(w io.Writer, level int) (io.WriteCloser, error)
	NewReader(r io.Reader) (io.ReadCloser, error)
}

// NewCompressor returns the compressor for algorithm
func NewCompressor(algorithm config.CompressionAlgorithm) (Compressor, error) {
	switch algorithm {
	case config.CompressionGzip:
		return gzipCompressor{}, nil
	case config.CompressionLZ4:
		return lz4Compressor{}, nil
	case config.CompressionZstd:
		return zstdCompressor{}, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}
}

type gzipCompressor struct{}

func (gzipCompressor) Algorithm() config.CompressionAlgorithm { return config.CompressionGzip }
func (gzipCompressor) Extension() string                      { return ".gz" }

func (gzipCompressor) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	if level < gzip.BestSpeed || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	writer, err := gzip.NewWriterLevel(w, level)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	return writer, nil
}

func (gzipCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	reader, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	return reader, nil
}

type lz4Compressor struct{}

func (lz4Compressor) Algorithm() config.CompressionAlgorithm { return config.CompressionLZ4 }
func (lz4Compressor) Extension() string                      { return ".lz4" }

func (lz4Compressor) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	writer := lz4.NewWriter(w)
	// lz4 only distinguishes fast mode from the high compression levels
	if level > 6 {
		if err := writer.Apply(lz4.CompressionLevelOption(lz4.Level9)); err != nil {
			return nil, fmt.Errorf("failed to set lz4 compression level: %w", err)
		}
	}
	return writer, nil
}

func (lz4Compressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

type zstdCompressor struct{}

func (zstdCompressor) Algorithm() config.CompressionAlgorithm { return config.CompressionZstd }
func (zstdCompressor) Extension() string                      { return ".zst" }

func (zstdCompressor) NewWriter(w io.Writer, level int) (io.WriteCloser, error) {
	encoder, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstdLevel(level)))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	return encoder, nil
}

func (zstdCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return decoder.IOReadCloser(), nil
}

func zstdLevel(level int) zstd.EncoderLevel {
	switch {
	case level <= 1:
		return zstd.SpeedFastest
	case level <= 3:
		return zstd.SpeedDefault
	case level <= 6:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}
