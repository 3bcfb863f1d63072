package compressor

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Limited caps the number of in-flight compressions of the wrapped backend.
type Limited struct {
	next Compressor
	sem  *semaphore.Weighted
}

// NewLimited wraps next. n <= 0 means one slot per CPU.
func NewLimited(next Compressor, n int) *Limited {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return &Limited{next: next, sem: semaphore.NewWeighted(int64(n))}
}

// Compress waits for a free slot, then delegates.
func (l *Limited) Compress(ctx context.Context, path string) ([]byte, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer l.sem.Release(1)
	return l.next.Compress(ctx, path)
}
