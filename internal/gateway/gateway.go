package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"

	"github.com/couchcryptid/zonal-climate-analyzer/internal/catalog"
	"github.com/couchcryptid/zonal-climate-analyzer/internal/config"
	"github.com/couchcryptid/zonal-climate-analyzer/internal/domain"
	"github.com/couchcryptid/zonal-climate-analyzer/internal/observability"
	"github.com/couchcryptid/zonal-climate-analyzer/internal/vector"
)

// wgs84 is assumed for GeoJSON and GeoPackage layers without a CRS.
const wgs84 = 4326

// Publisher emits run lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, event domain.RunEvent) error
}

// Options are the gateway's limits and directories.
type Options struct {
	OutputDir      string
	RasterDir      string
	MaxUploadBytes int64
	MaxZipFiles    int
	MaxZipBytes    int64
	MaxFeatures    int
	MaxVertices    int
	MinFreeDisk    uint64
}

// OptionsFromConfig derives the gateway options from the service config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		OutputDir:      cfg.OutputDir,
		RasterDir:      cfg.RasterDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
		MaxZipFiles:    cfg.MaxZipFiles,
		MaxZipBytes:    cfg.MaxZipUncompressedBytes,
		MaxFeatures:    cfg.MaxFeatures,
		MaxVertices:    cfg.MaxVertices,
		MinFreeDisk:    cfg.MinFreeDiskBytes,
	}
}

// Deps are the gateway's collaborators. Geocoder and Events are optional.
type Deps struct {
	Geo      Geo
	Scanner  Scanner
	Runner   Runner
	Lock     *Lock
	Runs     *Runs
	Coverage *Coverage
	Geocoder domain.Geocoder
	Events   Publisher
	Disk     DiskUsage
	Clock    clockwork.Clock
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

// Response is the result of a successful analysis.
type Response struct {
	RunID   string          `json:"runId"`
	Message string          `json:"message"`
	Outputs []domain.Output `json:"outputs"`
	ZipURL  string          `json:"zipUrl"`
	Place   *domain.Place   `json:"place,omitempty"`
}

// Gateway turns untrusted uploads into pipeline runs.
type Gateway struct {
	opts Options
	Deps
}

// New creates a Gateway.
func New(opts Options, deps Deps) *Gateway {
	if deps.Disk == nil {
		deps.Disk = FreeBytes
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	return &Gateway{opts: opts, Deps: deps}
}

// DoneMessage is the completion message in lang.
func DoneMessage(lang string) string {
	if config.NormalizeLang(lang) == "en" {
		return "Analysis completed."
	}
	return "Analyse abgeschlossen."
}

// StartupCleanup clears a stale analysis lock and expired runs.
func (g *Gateway) StartupCleanup() {
	g.Lock.CleanupStale()
	g.Runs.Purge()
}

// Analyze validates and stages one input, runs the pipeline under the
// analysis lock and collects its outputs. On any failure the run directory
// is removed and the returned error is an *Error.
func (g *Gateway) Analyze(ctx context.Context, in Input) (resp *Response, err error) {
	lang := config.NormalizeLang(in.Lang())

	if err := ensureDisk(g.Disk, g.opts.OutputDir, g.opts.MinFreeDisk); err != nil {
		g.reject(err)
		return nil, err
	}
	g.Runs.Purge()

	run, err := g.Runs.Create()
	if err != nil {
		return nil, err
	}
	logger := g.Logger.With("run_id", run.ID, "input", in.Kind().String())

	defer func() {
		if err == nil {
			return
		}
		gwErr := AsError(err)
		if gwErr.Status < 500 || gwErr.Reason == "busy" {
			logger.Info("analysis rejected", "reason", gwErr.Reason, "detail", gwErr.Message)
			g.reject(gwErr)
		} else {
			logger.Error("analysis failed", "error", err)
		}
		g.Runs.Remove(run)
		err = gwErr
	}()

	shp, err := g.stage(ctx, in, run)
	if err != nil {
		return nil, err
	}
	region, err := g.checkCoverage(shp)
	if err != nil {
		return nil, err
	}

	outputs, err := g.execute(ctx, in, shp, run, lang, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("analysis completed", "outputs", len(outputs))
	return &Response{
		RunID:   run.ID,
		Message: DoneMessage(lang),
		Outputs: outputs,
		ZipURL:  fmt.Sprintf("/api/runs/%s/download", run.ID),
		Place:   domain.DescribeRegion(ctx, region, g.Geocoder, logger),
	}, nil
}

// CoverageGeoJSON returns the coverage footprint as GeoJSON.
func (g *Gateway) CoverageGeoJSON() (json.RawMessage, error) {
	_, raw, err := g.Coverage.Footprint()
	if err != nil {
		return nil, internal("Coverage is unavailable.", err)
	}
	return raw, nil
}

// Bundle returns the path of the run's output archive, building it first.
func (g *Gateway) Bundle(id string) (string, error) { return g.Runs.Bundle(id) }

// ResultFile resolves one output file of a run.
func (g *Gateway) ResultFile(id, name string) (string, error) { return g.Runs.ResultFile(id, name) }

// CheckReadiness reports whether the coverage footprint can be served.
func (g *Gateway) CheckReadiness(_ context.Context) error {
	_, _, err := g.Coverage.Footprint()
	return err
}

// stage stores the input in the run's upload directory and returns the
// canonical shapefile to analyze.
func (g *Gateway) stage(ctx context.Context, in Input, run domain.AnalysisRun) (string, error) {
	dir := run.UploadDir()

	switch v := in.(type) {
	case *Drawn:
		src := filepath.Join(dir, "drawn.geojson")
		if err := writeDrawn(v.GeoJSON, src); err != nil {
			return "", err
		}
		if err := g.Scanner.Scan(ctx, src); err != nil {
			return "", err
		}
		return g.convert(src, filepath.Join(dir, "drawn.shp"), KindDrawn)

	case *Upload:
		path := filepath.Join(dir, v.Filename)
		if _, err := writeCapped(v.Body, path, g.opts.MaxUploadBytes); err != nil {
			return "", err
		}
		if err := g.Scanner.Scan(ctx, path); err != nil {
			return "", err
		}

		switch v.Kind() {
		case KindZip:
			extracted := filepath.Join(dir, "extracted")
			limits := zipLimits{maxFiles: g.opts.MaxZipFiles, maxBytes: g.opts.MaxZipBytes}
			if err := extractZip(path, extracted, limits); err != nil {
				return "", err
			}
			if err := g.Scanner.Scan(ctx, extracted); err != nil {
				return "", err
			}
			shp, err := findShapefile(extracted)
			if err != nil {
				return "", err
			}
			return shp, g.checkShapefile(shp)
		case KindShapefile:
			return path, g.checkShapefile(path)
		case KindGeoPackage, KindGeoJSON:
			return g.convert(path, filepath.Join(dir, "uploaded_vector.shp"), v.Kind())
		}
	}
	return "", validation("file_type", "Unsupported file type.", nil)
}

// checkShapefile requires the companion files and enforces the limits.
func (g *Gateway) checkShapefile(shp string) error {
	if err := checkCompanions(shp); err != nil {
		return err
	}
	info, err := g.Geo.Inspect(shp)
	if err != nil {
		return validation("unreadable", "Unable to read the vector file.", err)
	}
	if err := g.checkLimits(info, KindShapefile); err != nil {
		return err
	}
	if !info.HasCRS {
		return validation("missing_crs", "CRS is missing. Please include a .prj file.", nil)
	}
	return nil
}

// convert enforces the limits on a GeoPackage or GeoJSON source and writes
// it as the shapefile dst.
func (g *Gateway) convert(src, dst string, kind Kind) (string, error) {
	info, err := g.Geo.Inspect(src)
	if err != nil {
		switch kind {
		case KindDrawn, KindGeoJSON:
			return "", validation("invalid_geojson", "Invalid GeoJSON.", err)
		case KindGeoPackage:
			return "", validation("invalid_gpkg", "Invalid GeoPackage file.", err)
		}
		return "", validation("unreadable", "Unable to read the vector file.", err)
	}
	if err := g.checkLimits(info, kind); err != nil {
		return "", err
	}
	if err := g.Geo.ToShapefile(src, dst, wgs84); err != nil {
		return "", internal("Unable to convert the vector file.", err)
	}
	return dst, nil
}

func (g *Gateway) checkLimits(info domain.VectorInfo, kind Kind) error {
	if info.Features == 0 {
		switch kind {
		case KindDrawn, KindGeoJSON:
			return validation("empty", "GeoJSON has no features.", nil)
		case KindGeoPackage:
			return validation("empty", "GeoPackage has no usable features.", nil)
		}
		return validation("empty", "No valid geometries found.", nil)
	}
	if info.Features > g.opts.MaxFeatures {
		return validation("features", "Too many features in upload.", nil)
	}
	if info.Vertices > g.opts.MaxVertices {
		return validation("vertices", "Geometry is too complex.", nil)
	}
	if !info.Polygonal {
		return validation("geometry_type", "Only polygon geometries are supported.", nil)
	}
	return nil
}

// checkCoverage requires every geometry of shp to lie within the coverage
// footprint and returns them in WGS84.
func (g *Gateway) checkCoverage(shp string) ([]orb.Geometry, error) {
	geoms, err := g.Geo.ReadWGS84(shp)
	if err != nil {
		return nil, validation("unreadable", "Unable to read the vector file.", err)
	}
	var polys []orb.Geometry
	for _, geom := range geoms {
		if domain.IsPolygonal(geom) {
			polys = append(polys, geom)
		}
	}
	if len(polys) == 0 {
		return nil, validation("empty", "No valid geometries found.", nil)
	}

	footprint, _, err := g.Coverage.Footprint()
	if err != nil {
		return nil, internal("Coverage is unavailable.", err)
	}
	ok, err := g.Geo.Covers(footprint, polys)
	if err != nil {
		return nil, internal("Unable to check coverage.", err)
	}
	if !ok {
		return nil, validation("outside_coverage", "All polygons must lie within the raster coverage area.", nil)
	}
	return polys, nil
}

// execute runs the pipeline under the analysis lock and collects outputs.
func (g *Gateway) execute(ctx context.Context, in Input, shp string, run domain.AnalysisRun, lang string, logger *slog.Logger) ([]domain.Output, error) {
	release, err := g.Lock.Acquire()
	if err != nil {
		if g.Metrics != nil && AsError(err).Reason == "busy" {
			g.Metrics.LockBusy.Inc()
		}
		return nil, err
	}

	// Artifacts of an earlier run for the same region are only touched by
	// the lock holder.
	stem := vector.Stem(shp)
	purgeOutputs(g.opts.OutputDir, stem, logger)

	job := Job{Shapefile: shp, Lang: lang, SkipDownload: catalog.LocalRastersReady(g.opts.RasterDir)}
	g.publish(ctx, domain.RunEvent{RunID: run.ID, Status: domain.RunStarted, Input: in.Kind().String(), Lang: lang})

	start := g.Clock.Now()
	if g.Metrics != nil {
		g.Metrics.PipelineRunning.Set(1)
	}
	// A client disconnect must not abort a run that holds the lock.
	err = g.Runner.Run(context.WithoutCancel(ctx), job)
	release()
	elapsed := g.Clock.Since(start)
	if g.Metrics != nil {
		g.Metrics.PipelineRunning.Set(0)
		g.Metrics.PipelineDuration.Observe(elapsed.Seconds())
	}

	event := domain.RunEvent{RunID: run.ID, Input: in.Kind().String(), Lang: lang, DurationMS: elapsed.Milliseconds()}
	var outputs []domain.Output
	if err == nil {
		outputs, err = collectOutputs(g.opts.OutputDir, stem, run, lang)
	}
	if err != nil {
		g.observeRun(runOutcome(err))
		event.Status, event.Error = domain.RunFailed, AsError(err).Message
		g.publish(ctx, event)
		return nil, err
	}

	g.observeRun("success")
	event.Status, event.Outputs = domain.RunSucceeded, len(outputs)
	g.publish(ctx, event)
	return outputs, nil
}

func runOutcome(err error) string {
	if AsError(err).Reason == "timeout" {
		return "timeout"
	}
	return "failure"
}

func (g *Gateway) observeRun(outcome string) {
	if g.Metrics != nil {
		g.Metrics.PipelineRuns.WithLabelValues(outcome).Inc()
	}
}

func (g *Gateway) reject(err error) {
	if g.Metrics == nil {
		return
	}
	var gwErr *Error
	if errors.As(err, &gwErr) && gwErr.Reason != "" {
		g.Metrics.Rejections.WithLabelValues(gwErr.Reason).Inc()
	}
}

// publish emits an event. Failures are logged and never fail the run.
func (g *Gateway) publish(ctx context.Context, event domain.RunEvent) {
	if g.Events == nil {
		return
	}
	event.OccurredAt = g.Clock.Now()
	if err := g.Events.Publish(ctx, event); err != nil {
		g.Logger.Warn("failed to publish run event", "run_id", event.RunID, "status", event.Status, "error", err)
	}
}
