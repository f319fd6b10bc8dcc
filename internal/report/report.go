// Package report renders the artifacts of a finished analysis: one PNG per
// climate indicator, an interactive map of the region and a CSV export of
// the statistics table.
package report

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"

	"github.com/couchcryptid/zonal-climate-analyzer/internal/domain"
)

// RegionReader loads region geometries for the map.
type RegionReader interface {
	// ReadGeometries returns geometries in the file's own metric CRS.
	ReadGeometries(path string) ([]orb.Geometry, error)
	// ReadWGS84 returns geometries reprojected to longitude/latitude.
	ReadWGS84(path string) ([]orb.Geometry, error)
}

// Reporter writes report artifacts into an output directory.
type Reporter struct {
	geo    RegionReader
	outDir string
	lang   string
	logger *slog.Logger
}

// NewReporter creates a Reporter. lang selects German ("de") or English
// ("en") captions.
func NewReporter(geo RegionReader, outDir, lang string, logger *slog.Logger) *Reporter {
	return &Reporter{geo: geo, outDir: outDir, lang: lang, logger: logger}
}

// OutputName is the file name of an artifact for a submitted file stem.
func OutputName(sourceStem, stem, ext string) string {
	return fmt.Sprintf("%s_%s%s", sourceStem, stem, ext)
}

// Render writes every chart the table has data for, the map and the CSV
// export, returning the paths written.
func (r *Reporter) Render(table domain.ZonalStatsTable, region domain.RegionOfInterest) ([]string, error) {
	if err := os.MkdirAll(r.outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	ff, err := loadFonts()
	if err != nil {
		return nil, err
	}

	var written []string
	for _, c := range charts {
		if missing := missingVariable(table, c.variables); missing != "" {
			r.logger.Warn("skipping chart", "chart", c.stem, "missing", missing)
			continue
		}
		path := filepath.Join(r.outDir, OutputName(region.SourceStem, c.stem, ".png"))
		if err := c.build(table, r.lang).render(path, ff); err != nil {
			return written, fmt.Errorf("render %s: %w", c.stem, err)
		}
		written = append(written, path)
	}

	if r.geo != nil {
		path, err := r.renderMap(region)
		if err != nil {
			return written, err
		}
		written = append(written, path)
	}

	csvPath := filepath.Join(r.outDir, OutputName(region.SourceStem, "statistics", ".csv"))
	if err := WriteCSV(table, csvPath); err != nil {
		return written, err
	}
	written = append(written, csvPath)

	r.logger.Info("report written", "region", region.Name(), "files", len(written))
	return written, nil
}

func (r *Reporter) renderMap(region domain.RegionOfInterest) (string, error) {
	native, err := r.geo.ReadGeometries(region.Path)
	if err != nil {
		return "", fmt.Errorf("read region: %w", err)
	}
	wgs84, err := r.geo.ReadWGS84(region.Path)
	if err != nil {
		return "", fmt.Errorf("read region in WGS84: %w", err)
	}
	area, perimeter := measure(native)

	path := filepath.Join(r.outDir, OutputName(region.SourceStem, "map", ".html"))
	if err := writeMap(path, region.SourceStem, r.lang, wgs84, area, perimeter); err != nil {
		return "", err
	}
	return path, nil
}

func missingVariable(t domain.ZonalStatsTable, variables []string) string {
	for _, v := range variables {
		if len(t.Series(v).Years) == 0 {
			return v
		}
	}
	return ""
}
