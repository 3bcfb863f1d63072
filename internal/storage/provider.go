// Package storage defines the bundle-directory file-system abstraction.
package storage

// Provider is the interface for bundle directory file operations.
// All paths are relative to the provider root and use forward slashes.
type Provider interface {
	// Root returns the absolute root directory.
	Root() string
	// Path resolves a relative path to an absolute one inside the root.
	Path(rel string) (string, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Exists reports whether a regular file exists at path.
	Exists(path string) (bool, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Glob returns the sorted regular files matching pattern.
	Glob(pattern string) ([]string, error)
}
