// Package apperr defines the error taxonomy shared by the build pipeline.
// Every kind is fatal to a run; callers match them with errors.Is / errors.As.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrCompression   = errors.New("compression failed")
	ErrMissingAsset  = errors.New("missing asset file")
	ErrToolchain     = errors.New("toolchain failure")
	ErrConfiguration = errors.New("configuration error")
)

// CompressionError reports a compressor run that did not produce usable output.
type CompressionError struct {
	Path     string
	ExitCode int // -1 when the process never started or was killed
	Err      error
}

func (e *CompressionError) Error() string {
	if e.ExitCode > 0 {
		return fmt.Sprintf("can't deflate the file %s: exit code %d", e.Path, e.ExitCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("can't deflate the file %s: %v", e.Path, e.Err)
	}
	return "can't deflate the file " + e.Path
}

func (e *CompressionError) Is(target error) bool { return target == ErrCompression }
func (e *CompressionError) Unwrap() error        { return e.Err }

// MissingAssetError reports a directive whose referenced file is absent.
type MissingAssetError struct {
	Path string
}

func (e *MissingAssetError) Error() string {
	return "missing asset file: " + e.Path
}

func (e *MissingAssetError) Is(target error) bool {
	return target == ErrMissingAsset || target == ErrNotFound
}

// ToolchainError reports a failed step of the engine toolchain collaborator.
type ToolchainError struct {
	Step string
	Err  error
}

func (e *ToolchainError) Error() string {
	return fmt.Sprintf("toolchain: %s: %v", e.Step, e.Err)
}

func (e *ToolchainError) Is(target error) bool { return target == ErrToolchain }
func (e *ToolchainError) Unwrap() error        { return e.Err }

// ConfigurationError reports malformed project metadata or settings.
type ConfigurationError struct {
	Source string
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %v", e.Source, e.Err)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }
func (e *ConfigurationError) Unwrap() error        { return e.Err }
