// Package models defines the domain types shared across the bundling pipeline.
package models

import "time"

// Asset is a named byte sequence read from the bundle directory.
type Asset struct {
	Path    string `json:"path"`
	Content []byte `json:"-"`
}

// Size returns the content length in bytes.
func (a Asset) Size() int {
	return len(a.Content)
}

// AssetReport records the sizes of one embedded or archived file.
type AssetReport struct {
	Path           string        `json:"path"`
	Kind           DirectiveKind `json:"kind"`
	RawSize        int           `json:"raw_size"`
	CompressedSize int           `json:"compressed_size,omitempty"`
	EncodedSize    int           `json:"encoded_size"`
}

// StageTiming records how long one pipeline stage took.
type StageTiming struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration"`
}

// BuildReport summarises one completed pipeline run.
type BuildReport struct {
	Title    string        `json:"title"`
	Artifact string        `json:"artifact"`
	Size     int           `json:"size"`
	Checksum string        `json:"checksum"`
	Assets   []AssetReport `json:"assets"`
	Stages   []StageTiming `json:"stages"`
	BuiltAt  time.Time     `json:"built_at"`
}
