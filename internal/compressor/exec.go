package compressor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"slices"
	"time"

	"github.com/starford/playpack/internal/apperr"
)

// DefaultCommand is the 7-Zip standalone binary.
const DefaultCommand = "7za"

// DefaultArgs select gzip container, maximum level, output to stdout.
// The input path is appended as the last argument.
var DefaultArgs = []string{"a", "dummy.gz", "-tgzip", "-mx=9", "-so"}

// waitDelay bounds how long output pipes stay open after a cancelled
// process is killed.
const waitDelay = 2 * time.Second

// Exec runs an external compressor process per call.
type Exec struct {
	command string
	args    []string
	timeout time.Duration
	stderr  io.Writer
}

// NewExec creates an Exec backend. Empty command or nil args fall back to
// the 7-Zip defaults. A zero timeout waits for the process indefinitely.
func NewExec(command string, args []string, timeout time.Duration, stderr io.Writer) *Exec {
	if command == "" {
		command = DefaultCommand
	}
	if args == nil {
		args = DefaultArgs
	}
	return &Exec{
		command: command,
		args:    slices.Clone(args),
		timeout: timeout,
		stderr:  stderr,
	}
}

// Compress spawns the process and collects its standard output. A non-zero
// exit discards whatever was written.
func (e *Exec) Compress(ctx context.Context, path string) ([]byte, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	args := append(slices.Clone(e.args), path)
	cmd := exec.CommandContext(ctx, e.command, args...) //nolint:gosec // command comes from operator config

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = e.stderr
	cmd.WaitDelay = waitDelay

	if err := cmd.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return nil, &apperr.CompressionError{Path: path, ExitCode: code, Err: err}
	}
	return stdout.Bytes(), nil
}
