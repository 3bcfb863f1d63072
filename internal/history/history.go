package history

import "github.com/starford/playpack/internal/models"

// Recorder defines the build history operations.
// Consumers should depend on this interface rather than the concrete *DB type.
type Recorder interface {
	RecordBuild(r models.BuildReport) (int64, error)
	LastBuild(title string) (*Build, error)
	ListBuilds(title string, limit int) ([]Build, error)
	Assets(buildID int64) ([]models.AssetReport, error)
	Close() error
}

// Verify *DB satisfies Recorder at compile time.
var _ Recorder = (*DB)(nil)
