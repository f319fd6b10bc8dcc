package gateway

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/klauspost/compress/zip"

	"github.com/couchcryptid/zonal-climate-analyzer/internal/domain"
	"github.com/couchcryptid/zonal-climate-analyzer/internal/report"
)

var runIDPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// Runs manages the per-request working directories.
type Runs struct {
	dir       string
	retention time.Duration
	clock     clockwork.Clock
	logger    *slog.Logger
}

// NewRuns creates a manager rooted at dir. Runs older than retention are
// purged; zero retention keeps them forever.
func NewRuns(dir string, retention time.Duration, clock clockwork.Clock, logger *slog.Logger) *Runs {
	return &Runs{dir: dir, retention: retention, clock: clock, logger: logger}
}

// Create allocates a run and its upload directory.
func (r *Runs) Create() (domain.AnalysisRun, error) {
	run := domain.NewRun(r.dir)
	if err := os.MkdirAll(run.UploadDir(), 0o755); err != nil {
		return domain.AnalysisRun{}, internal("Unable to create run directory.", err)
	}
	return run, nil
}

// Remove deletes a run directory and everything in it.
func (r *Runs) Remove(run domain.AnalysisRun) {
	if err := os.RemoveAll(run.Dir); err != nil {
		r.logger.Warn("failed to remove run directory", "run_id", run.ID, "error", err)
	}
}

// Purge deletes run directories last modified before the retention window.
func (r *Runs) Purge() int {
	if r.retention <= 0 {
		return 0
	}
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return 0
	}
	cutoff := r.clock.Now().Add(-r.retention)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(r.dir, e.Name())); err != nil {
			r.logger.Warn("failed to purge run", "run_id", e.Name(), "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		r.logger.Info("purged expired runs", "count", removed)
	}
	return removed
}

// Lookup resolves an existing run by identifier.
func (r *Runs) Lookup(id string) (domain.AnalysisRun, error) {
	if !runIDPattern.MatchString(id) {
		return domain.AnalysisRun{}, notFound("Run not found.")
	}
	run := domain.AnalysisRun{ID: id, Dir: filepath.Join(r.dir, id)}
	info, err := os.Stat(run.Dir)
	if err != nil || !info.IsDir() {
		return domain.AnalysisRun{}, notFound("Run not found.")
	}
	return run, nil
}

// ResultFile resolves one file of a run's results directory.
func (r *Runs) ResultFile(id, name string) (string, error) {
	run, err := r.Lookup(id)
	if err != nil {
		return "", err
	}
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", notFound("File not found.")
	}
	path := filepath.Join(run.ResultsDir(), name)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return "", notFound("File not found.")
	}
	return path, nil
}

// Bundle writes <run>/outputs.zip with every file of the results directory
// and returns its path.
func (r *Runs) Bundle(id string) (string, error) {
	run, err := r.Lookup(id)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(run.ResultsDir())
	if err != nil {
		return "", notFound("Run results not found.")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	path := run.BundlePath()
	if err := writeBundle(path, run.ResultsDir(), names); err != nil {
		_ = os.Remove(path)
		return "", internal("Unable to build download.", err)
	}
	return path, nil
}

func writeBundle(path, dir string, names []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, name := range names {
		if err := addToZip(zw, filepath.Join(dir, name), name); err != nil {
			return fmt.Errorf("add %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return f.Close()
}

func addToZip(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

// outputTypes maps listed artifact extensions to their output type. Other
// artifacts of the stem are copied into the bundle without being listed.
var outputTypes = map[string]string{".png": "plot", ".html": "map"}

// bundledExtensions are copied into the results directory.
var bundledExtensions = map[string]bool{".png": true, ".html": true, ".csv": true, ".json": true}

// collectOutputs copies the artifacts the pipeline wrote for stem into the
// run's results directory and describes the listed ones, sorted by name.
func collectOutputs(outputDir, stem string, run domain.AnalysisRun, lang string) ([]domain.Output, error) {
	if err := os.MkdirAll(run.ResultsDir(), 0o755); err != nil {
		return nil, internal("Unable to store results.", err)
	}
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return nil, internal("No outputs were generated.", err)
	}

	prefix := stem + "_"
	var outputs []domain.Output
	for _, e := range entries {
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !bundledExtensions[ext] {
			continue
		}
		if err := copyFile(filepath.Join(outputDir, name), filepath.Join(run.ResultsDir(), name)); err != nil {
			return nil, internal("Unable to store results.", err)
		}
		typ, listed := outputTypes[ext]
		if !listed {
			continue
		}
		plot := strings.TrimPrefix(strings.TrimSuffix(name, filepath.Ext(name)), prefix)
		label := name
		if plot != "" {
			label = report.Label(plot, lang)
		}
		outputs = append(outputs, domain.Output{
			Name:  name,
			Type:  typ,
			Label: label,
			URL:   fmt.Sprintf("/runs/%s/results/%s", run.ID, name),
		})
	}
	if len(outputs) == 0 {
		return nil, internal("No outputs were generated.", errors.New("no artifacts for "+stem))
	}
	sort.Slice(outputs, func(i, j int) bool { return outputs[i].Name < outputs[j].Name })
	return outputs, nil
}

// purgeOutputs deletes earlier artifacts of stem from the output directory.
func purgeOutputs(outputDir, stem string, logger *slog.Logger) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return
	}
	prefix := stem + "_"
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		if err := os.Remove(filepath.Join(outputDir, e.Name())); err != nil {
			logger.Warn("failed to remove previous output", "file", e.Name(), "error", err)
		}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
