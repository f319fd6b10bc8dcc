package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/zonal-climate-analyzer/internal/catalog"
	"github.com/couchcryptid/zonal-climate-analyzer/internal/domain"
	"github.com/couchcryptid/zonal-climate-analyzer/internal/stats"
)

// Fetcher lists and downloads catalog files.
type Fetcher interface {
	ListAssets(ctx context.Context, variables []domain.Variable, suffixes []string) ([]domain.RemoteRef, error)
	Download(ctx context.Context, refs []domain.RemoteRef, dir string, progress catalog.Progress) (catalog.DownloadResult, error)
}

// Normalizer decompresses one archive into a canonically named grid.
type Normalizer interface {
	Normalize(path string) (domain.RasterAsset, error)
}

// Georeferencer attaches the analysis projection to a grid.
type Georeferencer interface {
	Georeference(asset domain.RasterAsset) (domain.RasterAsset, error)
}

// RegionPreparer reprojects and dissolves the input polygon.
type RegionPreparer interface {
	Prepare(ctx context.Context, input string) (domain.RegionOfInterest, error)
}

// Aggregator computes the statistics table.
type Aggregator interface {
	Aggregate(ctx context.Context, region domain.RegionOfInterest, assets []domain.RasterAsset, progress stats.Progress) (domain.ZonalStatsTable, error)
}

// Dirs is the on-disk layout the pipeline works in.
type Dirs struct {
	Raster   string
	DataInfo string
	Output   string
}

// Request is one analysis of one polygon file.
type Request struct {
	Input        string
	SkipDownload bool
}

// Result is what a successful run leaves behind.
type Result struct {
	StatsPath string
	Region    domain.RegionOfInterest
	Table     domain.ZonalStatsTable
}

// Pipeline runs fetch, normalize, georeference, region preparation and
// aggregation strictly in sequence.
type Pipeline struct {
	fetcher    Fetcher
	normalizer Normalizer
	georef     Georeferencer
	region     RegionPreparer
	aggregator Aggregator
	dirs       Dirs
	progress   ProgressFactory
	logger     *slog.Logger
}

// New creates a Pipeline. A nil progress factory disables progress output.
func New(f Fetcher, n Normalizer, g Georeferencer, r RegionPreparer, a Aggregator, dirs Dirs, progress ProgressFactory, logger *slog.Logger) *Pipeline {
	if progress == nil {
		progress = NoProgress
	}
	return &Pipeline{
		fetcher:    f,
		normalizer: n,
		georef:     g,
		region:     r,
		aggregator: a,
		dirs:       dirs,
		progress:   progress,
		logger:     logger,
	}
}

// Run executes one analysis and persists its statistics table. Intermediate
// rasters created by the run are removed whether or not it succeeds.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	// The region goes first so a polygon without CRS fails before any download.
	region, err := p.region.Prepare(ctx, req.Input)
	if err != nil {
		return Result{}, fmt.Errorf("prepare region: %w", err)
	}

	if err := p.fetch(ctx, req.SkipDownload); err != nil {
		return Result{}, err
	}

	var derived []string
	defer func() {
		if n := stats.Cleanup(derived, p.logger); n > 0 {
			p.logger.Info("intermediate rasters removed", "count", n)
		}
	}()

	assets, err := p.prepareRasters(ctx, &derived)
	if err != nil {
		return Result{}, err
	}

	bar := p.progress(len(assets), "Calculating zonal statistics")
	table, err := p.aggregator.Aggregate(ctx, region, assets, bar)
	bar.Finish() //nolint:errcheck // progress output is cosmetic
	if err != nil {
		return Result{}, fmt.Errorf("aggregate: %w", err)
	}

	path, err := stats.Persist(table, region, p.dirs.Output)
	if err != nil {
		return Result{}, err
	}

	p.logger.Info("analysis finished",
		"region", region.Name(),
		"stats", path,
		"rasters", len(assets),
		"duration", time.Since(start),
	)
	return Result{StatsPath: path, Region: region, Table: table}, nil
}

func (p *Pipeline) fetch(ctx context.Context, skip bool) error {
	if skip {
		if !catalog.LocalRastersReady(p.dirs.Raster) {
			return fmt.Errorf("%w locally in %s; allow downloads to fetch them", domain.ErrNoRasters, p.dirs.Raster)
		}
		p.logger.Info("skipping catalog download", "dir", p.dirs.Raster)
		return nil
	}

	variables := domain.EnabledVariables()
	rasters, err := p.fetcher.ListAssets(ctx, variables, domain.RasterSuffixes)
	if err != nil {
		return fmt.Errorf("list rasters: %w", err)
	}
	if catalog.AlreadyMaterialized(rasters, p.dirs.Raster) {
		p.logger.Info("all rasters already downloaded", "files", len(rasters))
		return nil
	}

	docs, err := p.fetcher.ListAssets(ctx, variables, domain.DocumentSuffixes)
	if err != nil {
		return fmt.Errorf("list documentation: %w", err)
	}
	if _, err := p.fetcher.Download(ctx, docs, p.dirs.DataInfo, nil); err != nil {
		return fmt.Errorf("download documentation: %w", err)
	}

	bar := p.progress(len(rasters), "Downloading rasters")
	_, err = p.fetcher.Download(ctx, rasters, p.dirs.Raster, bar)
	bar.Finish() //nolint:errcheck // progress output is cosmetic
	if err != nil {
		return fmt.Errorf("download rasters: %w", err)
	}
	return nil
}

// prepareRasters normalizes and georeferences every raster in the raster dir,
// appending each file it creates to derived.
func (p *Pipeline) prepareRasters(ctx context.Context, derived *[]string) ([]domain.RasterAsset, error) {
	sources, err := rasterSources(p.dirs.Raster)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w in %s", domain.ErrNoRasters, p.dirs.Raster)
	}

	bar := p.progress(len(sources), "Preparing rasters")
	defer bar.Finish() //nolint:errcheck // progress output is cosmetic

	assets := make([]domain.RasterAsset, 0, len(sources))
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		asset, err := p.normalizer.Normalize(src)
		if err != nil {
			return nil, err
		}
		if asset.Path != src {
			*derived = append(*derived, asset.Path)
		}

		final, err := p.georef.Georeference(asset)
		if err != nil {
			return nil, err
		}
		if final.Path != asset.Path {
			*derived = append(*derived, final.Path)
		}

		assets = append(assets, final)
		bar.Add(1) //nolint:errcheck // progress output is cosmetic
	}
	return assets, nil
}

// rank orders the forms a raster can take locally; the most processed form wins.
func rank(name string) int {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tif"):
		return 3
	case strings.HasSuffix(lower, ".asc"):
		return 2
	case strings.HasSuffix(lower, ".asc.gz"), strings.HasSuffix(lower, ".zip"):
		return 1
	default:
		return 0
	}
}

// rasterSources picks one file per canonical raster stem in dir, sorted by stem.
func rasterSources(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read raster dir: %w", err)
	}

	best := make(map[string]string)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || rank(name) == 0 {
			continue
		}
		stem := domain.CanonicalStem(name)
		if cur, ok := best[stem]; !ok || rank(name) > rank(cur) {
			best[stem] = name
		}
	}

	stems := make([]string, 0, len(best))
	for s := range best {
		stems = append(stems, s)
	}
	sort.Strings(stems)

	out := make([]string, len(stems))
	for i, s := range stems {
		out[i] = filepath.Join(dir, best[s])
	}
	return out, nil
}
