package preview

import (
	"sync"

	"github.com/starford/playpack/internal/models"
)

// State holds the outcome of the most recent build.
type State struct {
	mu     sync.RWMutex
	report *models.BuildReport
	err    error
}

// Update records a build outcome. A failed build keeps the previous
// artifact available.
func (s *State) Update(report models.BuildReport, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	if err == nil {
		s.report = &report
	}
}

// Snapshot returns the last successful report (nil before the first build)
// and the error of the latest build.
func (s *State) Snapshot() (*models.BuildReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.report == nil {
		return nil, s.err
	}
	r := *s.report
	return &r, s.err
}
