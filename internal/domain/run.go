package domain

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AnalysisRun is one request's working area on disk.
type AnalysisRun struct {
	ID        string
	Dir       string
	CreatedAt time.Time
}

// NewRun allocates an identifier under runsDir. Nothing is created on disk.
func NewRun(runsDir string) AnalysisRun {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return AnalysisRun{
		ID:        id,
		Dir:       filepath.Join(runsDir, id),
		CreatedAt: clock.Now(),
	}
}

func (r AnalysisRun) UploadDir() string  { return filepath.Join(r.Dir, "upload") }
func (r AnalysisRun) ResultsDir() string { return filepath.Join(r.Dir, "results") }
func (r AnalysisRun) BundlePath() string { return filepath.Join(r.Dir, "outputs.zip") }

// Output describes one retrievable artifact of a run.
type Output struct {
	Name  string `json:"name"`
	Type  string `json:"type"` // "plot" or "map"
	Label string `json:"label"`
	URL   string `json:"url"`
}
