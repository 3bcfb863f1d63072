// Package compressor turns a file into a gzip-container DEFLATE stream.
//
// The default backend spawns an external compressor process per call. Calls
// are independent and may run concurrently; Limited bounds how many run at
// once and Cached makes identical content always yield identical bytes.
package compressor

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

// Backend names accepted by New.
const (
	BackendExec    = "exec"
	BackendBuiltin = "builtin"
)

// Compressor compresses the file at path and returns the complete stream.
// On failure no partial output is returned.
type Compressor interface {
	Compress(ctx context.Context, path string) ([]byte, error)
}

// Func adapts an ordinary function to the Compressor interface.
type Func func(ctx context.Context, path string) ([]byte, error)

// Compress calls f(ctx, path).
func (f Func) Compress(ctx context.Context, path string) ([]byte, error) {
	return f(ctx, path)
}

// Options selects and tunes a backend.
type Options struct {
	Backend string
	Command string
	Args    []string
	Workers int
	Timeout time.Duration
	Stderr  io.Writer
}

// New builds the backend described by opts wrapped in a worker bound and a
// content cache.
func New(opts Options) (Compressor, error) {
	var backend Compressor
	switch opts.Backend {
	case BackendExec, "":
		stderr := opts.Stderr
		if stderr == nil {
			stderr = os.Stderr
		}
		backend = NewExec(opts.Command, opts.Args, opts.Timeout, stderr)
	case BackendBuiltin:
		backend = NewBuiltin()
	default:
		return nil, fmt.Errorf("compressor: unknown backend %q", opts.Backend)
	}
	return NewCached(NewLimited(backend, opts.Workers)), nil
}
