package compressor

import (
	"bytes"
	"context"
	"encoding/hex"
	"os"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/starford/playpack/internal/apperr"
	"github.com/starford/playpack/internal/checksum"
)

// Cached memoizes compressed output by content digest. Concurrent requests
// for the same content share one backend call.
type Cached struct {
	next Compressor

	mu      sync.Mutex
	entries map[checksum.Digest][]byte
	group   singleflight.Group
}

// NewCached wraps next with a content-addressed cache.
func NewCached(next Compressor) *Cached {
	return &Cached{next: next, entries: make(map[checksum.Digest][]byte)}
}

// Compress returns the cached stream for path's content, compressing it on
// first sight.
func (c *Cached) Compress(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &apperr.CompressionError{Path: path, ExitCode: -1, Err: err}
	}
	key := checksum.Of(data)

	if out, ok := c.lookup(key); ok {
		return out, nil
	}

	v, err, _ := c.group.Do(hex.EncodeToString(key[:]), func() (any, error) {
		if out, ok := c.lookup(key); ok {
			return out, nil
		}
		out, err := c.next.Compress(ctx, path)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = out
		c.mu.Unlock()
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return bytes.Clone(v.([]byte)), nil
}

// Len returns the number of cached streams.
func (c *Cached) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cached) lookup(key checksum.Digest) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return bytes.Clone(out), true
}
