// Package stats computes zonal statistics of the prepared rasters over the
// dissolved region and persists them as the run's JSON table.
package stats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/couchcryptid/zonal-climate-analyzer/internal/domain"
)

// Overlay computes statistics of one raster over one region.
type Overlay interface {
	// ZonalStats returns one record per feature of the region file, counting
	// every cell the geometry touches.
	ZonalStats(regionPath, rasterPath string) ([]domain.ZonalStats, error)
}

// Progress receives one increment per processed raster.
type Progress interface {
	Add(n int) error
}

// Aggregator folds per-raster statistics into a ZonalStatsTable.
type Aggregator struct {
	overlay Overlay
	logger  *slog.Logger
}

// NewAggregator creates an Aggregator.
func NewAggregator(overlay Overlay, logger *slog.Logger) *Aggregator {
	return &Aggregator{overlay: overlay, logger: logger}
}

// Aggregate computes statistics for every georeferenced asset. Assets whose
// names carry no year are skipped; an overlay failure aborts the run.
// progress may be nil.
func (a *Aggregator) Aggregate(ctx context.Context, region domain.RegionOfInterest, assets []domain.RasterAsset, progress Progress) (domain.ZonalStatsTable, error) {
	if len(assets) == 0 {
		return nil, domain.ErrNoRasters
	}

	table := make(domain.ZonalStatsTable)
	for _, asset := range assets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stem := asset.Stem()
		if _, _, err := domain.SplitKey(stem); err != nil {
			a.logger.Warn("skipping raster without year", "path", asset.Path, "error", err)
			continue
		}

		records, err := a.overlay.ZonalStats(region.Path, asset.Path)
		if err != nil {
			return nil, fmt.Errorf("zonal statistics for %s: %w", filepath.Base(asset.Path), err)
		}
		if err := table.Add(stem, records); err != nil {
			return nil, err
		}
		if progress != nil {
			progress.Add(1) //nolint:errcheck // progress output is cosmetic
		}
	}

	a.logger.Info("statistics aggregated", "region", region.Name(), "rasters", len(assets), "variables", len(table))
	return table, nil
}

// StatsPath is where the table of a region is persisted.
func StatsPath(region domain.RegionOfInterest, outputDir string) string {
	return filepath.Join(outputDir, region.Name()+"_rasterstats.json")
}

// Persist writes table to outputDir as "<region>_rasterstats.json".
func Persist(table domain.ZonalStatsTable, region domain.RegionOfInterest, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := StatsPath(region, outputDir)
	if err := table.WriteFile(path); err != nil {
		return "", err
	}
	return path, nil
}

// Cleanup deletes the given intermediate rasters and returns how many were
// removed. Files that are already gone are not an error.
func Cleanup(paths []string, logger *slog.Logger) int {
	removed := 0
	for _, p := range paths {
		err := os.Remove(p)
		switch {
		case err == nil:
			removed++
		case errors.Is(err, os.ErrNotExist):
		default:
			logger.Warn("remove intermediate raster", "path", p, "error", err)
		}
	}
	return removed
}
