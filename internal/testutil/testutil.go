// Package testutil provides shared test helpers for bundle directories and compressors.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/starford/playpack/internal/compressor"
	"github.com/starford/playpack/internal/storage"
)

// TestBundle creates a temporary bundle directory populated with files
// (relative path → content) and a storage.Provider rooted at it.
func TestBundle(t *testing.T, files map[string]string) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		WriteFile(t, dir, rel, []byte(content))
	}
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// WriteFile writes data under dir, creating parent directories.
func WriteFile(t *testing.T, dir, rel string, data []byte) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

// Logger returns a logger that discards everything below error level.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// CountingCompressor is an in-process gzip compressor that counts calls.
type CountingCompressor struct {
	calls atomic.Int32
	inner *compressor.Builtin
}

// NewCountingCompressor returns a ready CountingCompressor.
func NewCountingCompressor() *CountingCompressor {
	return &CountingCompressor{inner: compressor.NewBuiltin()}
}

// Compress gzips the file at path.
func (c *CountingCompressor) Compress(ctx context.Context, path string) ([]byte, error) {
	c.calls.Add(1)
	return c.inner.Compress(ctx, path)
}

// Calls returns how many times Compress ran.
func (c *CountingCompressor) Calls() int {
	return int(c.calls.Load())
}
