package compressor

import (
	"bytes"
	"context"
	"os"

	"github.com/klauspost/compress/gzip"

	"github.com/starford/playpack/internal/apperr"
)

// Builtin compresses in-process at maximum gzip level. The header carries
// no name or timestamp, so equal input gives equal output.
type Builtin struct {
	level int
}

// NewBuiltin creates a Builtin backend.
func NewBuiltin() *Builtin {
	return &Builtin{level: gzip.BestCompression}
}

// Compress reads path and returns its gzip stream.
func (b *Builtin) Compress(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &apperr.CompressionError{Path: path, ExitCode: -1, Err: err}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &apperr.CompressionError{Path: path, ExitCode: -1, Err: err}
	}
	return Gzip(data, b.level)
}

// Gzip compresses data at the given level.
func Gzip(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Gunzip inflates a gzip stream produced by any backend.
func Gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	var out bytes.Buffer
	if _, err := out.ReadFrom(zr); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
