package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/zonal-climate-analyzer/internal/domain"
	"github.com/couchcryptid/zonal-climate-analyzer/internal/observability"
)

// --- mocks ---

type fakeGeo struct {
	mu         sync.Mutex
	info       domain.VectorInfo
	inspectErr error
	wgs84      []orb.Geometry
	covers     bool
	converted  []string
}

func (f *fakeGeo) Inspect(string) (domain.VectorInfo, error) { return f.info, f.inspectErr }

func (f *fakeGeo) ToShapefile(_, dst string, _ int) error {
	f.mu.Lock()
	f.converted = append(f.converted, dst)
	f.mu.Unlock()
	return os.WriteFile(dst, []byte("shp"), 0o644)
}

func (f *fakeGeo) ReadWGS84(string) ([]orb.Geometry, error) { return f.wgs84, nil }

func (f *fakeGeo) Covers(orb.Geometry, []orb.Geometry) (bool, error) { return f.covers, nil }

func (f *fakeGeo) RasterFootprint([]string, string) (orb.Geometry, error) {
	return nil, errors.New("not used")
}

type fakeScanner struct {
	mu      sync.Mutex
	err     error
	scanned []string
}

func (f *fakeScanner) Scan(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanned = append(f.scanned, path)
	return f.err
}

// fakeRunner writes the artifacts a successful pipeline leaves behind. When
// started is set it announces the run and waits for proceed before finishing.
type fakeRunner struct {
	mu      sync.Mutex
	outDir  string
	err     error
	jobs    []Job
	lock    string
	started chan struct{}
	proceed chan struct{}
}

func (f *fakeRunner) Run(_ context.Context, job Job) error {
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	started, proceed := f.started, f.proceed
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
		<-proceed
	}
	if f.lock != "" {
		if _, err := os.Stat(f.lock); err != nil {
			return errors.New("lock not held during run")
		}
	}
	if f.err != nil {
		return f.err
	}
	stem := strings.TrimSuffix(filepath.Base(job.Shapefile), filepath.Ext(job.Shapefile))
	for _, suffix := range []string{"_map.html", "_frost_eistage.png", "_statistics.csv"} {
		if err := os.WriteFile(filepath.Join(f.outDir, stem+suffix), []byte("x"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

type fakeGeocoder struct{}

func (fakeGeocoder) ReverseGeocode(_ context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	return domain.GeocodingResult{Lat: lat, Lon: lon, PlaceName: "Kassel", FormattedAddress: "Kassel, Hessen, Germany"}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.RunEvent
}

func (r *recordingPublisher) Publish(_ context.Context, e domain.RunEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// --- fixtures ---

var kassel = orb.Bound{Min: orb.Point{9.4, 51.2}, Max: orb.Point{9.6, 51.4}}.ToPolygon()

type harness struct {
	gw      *Gateway
	geo     *fakeGeo
	scanner *fakeScanner
	runner  *fakeRunner
	events  *recordingPublisher
	metrics *observability.Metrics
	runsDir string
	outDir  string
	lock    *Lock
	free    uint64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	outDir := filepath.Join(root, "output")
	runsDir := filepath.Join(outDir, "web_runs")
	require.NoError(t, os.MkdirAll(runsDir, 0o755))

	cache := filepath.Join(outDir, "data_coverage.geojson")
	require.NoError(t, os.WriteFile(cache,
		[]byte(`{"type":"Polygon","coordinates":[[[5.8,47.2],[15.1,47.2],[15.1,55.1],[5.8,55.1],[5.8,47.2]]]}`), 0o644))

	clock := clockwork.NewFakeClock()
	logger := discardLogger()
	h := &harness{
		geo: &fakeGeo{
			info:   domain.VectorInfo{Features: 1, Vertices: 5, HasCRS: true, Polygonal: true},
			wgs84:  []orb.Geometry{kassel},
			covers: true,
		},
		scanner: &fakeScanner{},
		events:  &recordingPublisher{},
		metrics: observability.NewMetricsForTesting(),
		runsDir: runsDir,
		outDir:  outDir,
		free:    10 << 30,
	}
	h.lock = NewLock(filepath.Join(outDir, ".analysis.lock"), time.Hour, clock, logger)
	h.lock.alive = func(int) bool { return true }
	h.runner = &fakeRunner{outDir: outDir, lock: h.lock.path}

	h.gw = New(Options{
		OutputDir:      outDir,
		RasterDir:      filepath.Join(root, "rasters"),
		MaxUploadBytes: 1 << 20,
		MaxZipFiles:    10,
		MaxZipBytes:    1 << 20,
		MaxFeatures:    5,
		MaxVertices:    100,
		MinFreeDisk:    1 << 30,
	}, Deps{
		Geo:      h.geo,
		Scanner:  h.scanner,
		Runner:   h.runner,
		Lock:     h.lock,
		Runs:     NewRuns(runsDir, 48*time.Hour, clock, logger),
		Coverage: NewCoverage(cache, "", filepath.Join(root, "rasters"), domain.Projection{}, h.geo, logger),
		Geocoder: fakeGeocoder{},
		Events:   h.events,
		Disk:     func(string) (uint64, error) { return h.free, nil },
		Clock:    clock,
		Metrics:  h.metrics,
		Logger:   logger,
	})
	return h
}

func (h *harness) runDirs(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(h.runsDir)
	require.NoError(t, err)
	var dirs []string
	for _, e := range entries {
		dirs = append(dirs, e.Name())
	}
	return dirs
}

func drawn() *Drawn {
	return &Drawn{
		GeoJSON:  []byte(`{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[9.4,51.2],[9.6,51.2],[9.6,51.4],[9.4,51.4],[9.4,51.2]]]}}]}`),
		Language: "en",
	}
}

// --- tests ---

func TestAnalyze_DrawnGeometry(t *testing.T) {
	h := newHarness(t)

	resp, err := h.gw.Analyze(context.Background(), drawn())
	require.NoError(t, err)

	assert.Equal(t, "Analysis completed.", resp.Message)
	assert.Equal(t, "/api/runs/"+resp.RunID+"/download", resp.ZipURL)
	require.Len(t, resp.Outputs, 2)
	assert.Equal(t, "drawn_frost_eistage.png", resp.Outputs[0].Name)
	assert.Equal(t, "drawn_map.html", resp.Outputs[1].Name)
	require.NotNil(t, resp.Place)
	assert.Equal(t, "Kassel", resp.Place.Name)

	run := filepath.Join(h.runsDir, resp.RunID)
	assert.FileExists(t, filepath.Join(run, "upload", "drawn.geojson"))
	assert.FileExists(t, filepath.Join(run, "results", "drawn_statistics.csv"))
	assert.Equal(t, []string{filepath.Join(run, "upload", "drawn.shp")}, h.geo.converted)
	assert.Equal(t, []string{filepath.Join(run, "upload", "drawn.geojson")}, h.scanner.scanned)

	require.Len(t, h.runner.jobs, 1)
	assert.Equal(t, "en", h.runner.jobs[0].Lang)
	assert.False(t, h.runner.jobs[0].SkipDownload)
	assert.NoFileExists(t, h.lock.path, "lock is released after the run")

	require.Len(t, h.events.events, 2)
	assert.Equal(t, domain.RunStarted, h.events.events[0].Status)
	assert.Equal(t, domain.RunSucceeded, h.events.events[1].Status)
	assert.Equal(t, 2, h.events.events[1].Outputs)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.PipelineRuns.WithLabelValues("success")), 0)
}

func TestAnalyze_GermanIsDefault(t *testing.T) {
	h := newHarness(t)
	in := drawn()
	in.Language = ""

	resp, err := h.gw.Analyze(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Analyse abgeschlossen.", resp.Message)
	assert.Equal(t, "de", h.runner.jobs[0].Lang)
}

func TestAnalyze_ZipUpload(t *testing.T) {
	h := newHarness(t)
	archive := writeZip(t, filepath.Join(t.TempDir(), "parcel.zip"), shapefileParts)
	f, err := os.Open(archive)
	require.NoError(t, err)
	defer f.Close()

	up, err := NewUpload("parcel.zip", f, "de")
	require.NoError(t, err)
	resp, err := h.gw.Analyze(context.Background(), up)
	require.NoError(t, err)

	run := filepath.Join(h.runsDir, resp.RunID)
	assert.Equal(t, filepath.Join(run, "upload", "extracted", "parcel.shp"), h.runner.jobs[0].Shapefile)
	assert.Len(t, h.scanner.scanned, 2, "archive and extracted tree are both scanned")
	assert.Equal(t, "parcel_frost_eistage.png", resp.Outputs[0].Name)
}

func TestAnalyze_GeoPackageIsConverted(t *testing.T) {
	h := newHarness(t)
	up, err := NewUpload("fields.gpkg", strings.NewReader("gpkg"), "de")
	require.NoError(t, err)

	resp, err := h.gw.Analyze(context.Background(), up)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(h.runsDir, resp.RunID, "upload", "uploaded_vector.shp"), h.runner.jobs[0].Shapefile)
}

func TestAnalyze_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(h *harness)
		status  int
		message string
	}{
		{
			name:    "too many features",
			modify:  func(h *harness) { h.geo.info.Features = 6 },
			status:  http.StatusBadRequest,
			message: "Too many features in upload.",
		},
		{
			name:    "too many vertices",
			modify:  func(h *harness) { h.geo.info.Vertices = 101 },
			status:  http.StatusBadRequest,
			message: "Geometry is too complex.",
		},
		{
			name:    "not polygonal",
			modify:  func(h *harness) { h.geo.info.Polygonal = false },
			status:  http.StatusBadRequest,
			message: "Only polygon geometries are supported.",
		},
		{
			name:    "empty",
			modify:  func(h *harness) { h.geo.info.Features = 0 },
			status:  http.StatusBadRequest,
			message: "GeoJSON has no features.",
		},
		{
			name:    "unreadable",
			modify:  func(h *harness) { h.geo.inspectErr = errors.New("bad json") },
			status:  http.StatusBadRequest,
			message: "Invalid GeoJSON.",
		},
		{
			name:    "outside coverage",
			modify:  func(h *harness) { h.geo.covers = false },
			status:  http.StatusBadRequest,
			message: "All polygons must lie within the raster coverage area.",
		},
		{
			name:    "malware",
			modify:  func(h *harness) { h.scanner.err = validation("malware", "Upload failed malware scan.", nil) },
			status:  http.StatusBadRequest,
			message: "Upload failed malware scan.",
		},
		{
			name:    "disk full",
			modify:  func(h *harness) { h.free = 1 << 20 },
			status:  http.StatusInsufficientStorage,
			message: "Server disk space is too low.",
		},
		{
			name:    "analyzer failure",
			modify:  func(h *harness) { h.runner.err = internal("Analyzer failed. Traceback", nil) },
			status:  http.StatusInternalServerError,
			message: "Analyzer failed. Traceback",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.modify(h)

			_, err := h.gw.Analyze(context.Background(), drawn())
			requireGatewayError(t, err, tt.status, tt.message)
			assert.Empty(t, h.runDirs(t), "failed runs leave no directory behind")
			assert.NoFileExists(t, h.lock.path)
		})
	}
}

func TestAnalyze_ZipBeyondLimitsIsExhaustion(t *testing.T) {
	h := newHarness(t)
	parts := map[string]string{}
	for i := 0; i <= h.gw.opts.MaxZipFiles; i++ {
		parts[fmt.Sprintf("part%02d.dbf", i)] = "x"
	}
	archive := writeZip(t, filepath.Join(t.TempDir(), "many.zip"), parts)
	f, err := os.Open(archive)
	require.NoError(t, err)
	defer f.Close()

	up, err := NewUpload("many.zip", f, "de")
	require.NoError(t, err)
	_, err = h.gw.Analyze(context.Background(), up)
	requireGatewayError(t, err, http.StatusRequestEntityTooLarge, "Zip file contains too many entries.")
	assert.Empty(t, h.runner.jobs)
	assert.Empty(t, h.runDirs(t))
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.Rejections.WithLabelValues("zip_entries")), 0)
}

func TestAnalyze_ShapefileWithoutCompanions(t *testing.T) {
	h := newHarness(t)
	up, err := NewUpload("parcel.shp", strings.NewReader("shp"), "de")
	require.NoError(t, err)

	_, err = h.gw.Analyze(context.Background(), up)
	requireGatewayError(t, err, http.StatusBadRequest, "")
	assert.Empty(t, h.runner.jobs)
	assert.Empty(t, h.runDirs(t))
}

func TestAnalyze_BusyLock(t *testing.T) {
	h := newHarness(t)
	writeLockRecord(t, h.lock.path, lockRecord{PID: 4242, TS: unixSeconds(h.gw.Clock.Now()), Token: "other"})
	// Written by the analysis that holds the lock.
	running := filepath.Join(h.outDir, "drawn_EPSG31467_dissolved_rasterstats.json")
	require.NoError(t, os.WriteFile(running, []byte("{}"), 0o644))

	_, err := h.gw.Analyze(context.Background(), drawn())
	gwErr := requireGatewayError(t, err, http.StatusServiceUnavailable, "Analyzer is busy. Try again soon.")
	assert.Equal(t, 30*time.Second, gwErr.RetryAfter)
	assert.Empty(t, h.runner.jobs)
	assert.Empty(t, h.runDirs(t))
	assert.FileExists(t, h.lock.path, "a live holder keeps its lock")
	assert.FileExists(t, running, "a busy request leaves the holder's artifacts alone")
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.LockBusy), 0)
}

func TestAnalyze_ConcurrentRequestsRunOneAtATime(t *testing.T) {
	h := newHarness(t)
	h.runner.started = make(chan struct{})
	h.runner.proceed = make(chan struct{})

	type result struct {
		resp *Response
		err  error
	}
	first := make(chan result, 1)
	go func() {
		resp, err := h.gw.Analyze(context.Background(), drawn())
		first <- result{resp, err}
	}()
	<-h.runner.started

	partial := filepath.Join(h.outDir, "drawn_EPSG31467_dissolved_rasterstats.json")
	require.NoError(t, os.WriteFile(partial, []byte("{}"), 0o644))

	_, err := h.gw.Analyze(context.Background(), drawn())
	requireGatewayError(t, err, http.StatusServiceUnavailable, "Analyzer is busy. Try again soon.")
	assert.FileExists(t, partial)

	close(h.runner.proceed)
	got := <-first
	require.NoError(t, got.err)
	assert.Len(t, got.resp.Outputs, 2)
	assert.FileExists(t, filepath.Join(h.runsDir, got.resp.RunID, "results", filepath.Base(partial)))
	assert.NoFileExists(t, h.lock.path)

	h.runner.mu.Lock()
	h.runner.started, h.runner.proceed = nil, nil
	h.runner.mu.Unlock()

	_, err = h.gw.Analyze(context.Background(), drawn())
	require.NoError(t, err, "the lock is free once the first run finished")
	assert.Len(t, h.runner.jobs, 2)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.LockBusy), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(h.metrics.PipelineRuns.WithLabelValues("success")), 0)
}

func TestAnalyze_PurgesPreviousOutputsOfStem(t *testing.T) {
	h := newHarness(t)
	stale := filepath.Join(h.outDir, "drawn_vegetationsperiode.png")
	require.NoError(t, os.WriteFile(stale, nil, 0o644))

	resp, err := h.gw.Analyze(context.Background(), drawn())
	require.NoError(t, err)
	assert.NoFileExists(t, stale)
	for _, o := range resp.Outputs {
		assert.NotEqual(t, "drawn_vegetationsperiode.png", o.Name)
	}
}

func TestAnalyze_SkipsDownloadWithLocalRasters(t *testing.T) {
	h := newHarness(t)
	rasters := h.gw.opts.RasterDir
	require.NoError(t, os.MkdirAll(rasters, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(rasters, "frost_days_1991.asc.gz"), nil, 0o644))

	_, err := h.gw.Analyze(context.Background(), drawn())
	require.NoError(t, err)
	assert.True(t, h.runner.jobs[0].SkipDownload)
}

func TestCoverageGeoJSON(t *testing.T) {
	h := newHarness(t)
	raw, err := h.gw.CoverageGeoJSON()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"Polygon"`)
}

func TestDoneMessage(t *testing.T) {
	assert.Equal(t, "Analysis completed.", DoneMessage("en-GB"))
	assert.Equal(t, "Analyse abgeschlossen.", DoneMessage("de"))
	assert.Equal(t, "Analyse abgeschlossen.", DoneMessage("fr"))
}
