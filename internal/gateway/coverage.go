package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/zonal-climate-analyzer/internal/domain"
)

// Geo is the geospatial capability set the gateway needs.
type Geo interface {
	Inspect(path string) (domain.VectorInfo, error)
	// ToShapefile converts a GeoPackage or GeoJSON file into a shapefile,
	// tagging layers without a coordinate system with fallbackEPSG.
	ToShapefile(src, dst string, fallbackEPSG int) error
	ReadWGS84(path string) ([]orb.Geometry, error)
	Covers(outer orb.Geometry, inner []orb.Geometry) (bool, error)
	// RasterFootprint unions the rasters' extents in WGS84. Paths may be
	// gzip or zip archives of a grid; grids without a coordinate system are
	// taken to be in fallbackWKT.
	RasterFootprint(paths []string, fallbackWKT string) (orb.Geometry, error)
}

// Coverage is the area where raster data exists, in WGS84. It is built once
// and cached on disk.
type Coverage struct {
	cachePath    string
	boundaryPath string
	rasterDir    string
	proj         domain.Projection
	geo          Geo
	logger       *slog.Logger

	group singleflight.Group
	mu    sync.RWMutex
	geom  orb.Geometry
	raw   json.RawMessage
}

// NewCoverage creates a Coverage. The footprint comes from the cache file,
// else the boundary vector, else the union of raster extents. proj is the
// grids' coordinate system, which the DWD archives do not carry.
func NewCoverage(cachePath, boundaryPath, rasterDir string, proj domain.Projection, geo Geo, logger *slog.Logger) *Coverage {
	return &Coverage{
		cachePath:    cachePath,
		boundaryPath: boundaryPath,
		rasterDir:    rasterDir,
		proj:         proj,
		geo:          geo,
		logger:       logger,
	}
}

type footprint struct {
	geom orb.Geometry
	raw  json.RawMessage
}

// Footprint returns the coverage geometry and its GeoJSON encoding.
func (c *Coverage) Footprint() (orb.Geometry, json.RawMessage, error) {
	c.mu.RLock()
	geom, raw := c.geom, c.raw
	c.mu.RUnlock()
	if geom != nil {
		return geom, raw, nil
	}

	v, err, _ := c.group.Do("footprint", func() (any, error) {
		fp, err := c.load()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.geom, c.raw = fp.geom, fp.raw
		c.mu.Unlock()
		return fp, nil
	})
	if err != nil {
		return nil, nil, err
	}
	fp := v.(footprint)
	return fp.geom, fp.raw, nil
}

func (c *Coverage) load() (footprint, error) {
	if fp, ok := c.readCache(); ok {
		return fp, nil
	}

	var (
		geom orb.Geometry
		err  error
	)
	if _, statErr := os.Stat(c.boundaryPath); c.boundaryPath != "" && statErr == nil {
		geom, err = c.fromBoundary()
	} else {
		geom, err = c.fromRasters()
	}
	if err != nil {
		return footprint{}, err
	}

	raw, err := json.Marshal(geojson.NewGeometry(geom))
	if err != nil {
		return footprint{}, fmt.Errorf("encode coverage: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.cachePath), 0o755); err == nil {
		if err := os.WriteFile(c.cachePath, raw, 0o644); err != nil {
			c.logger.Warn("failed to cache coverage", "path", c.cachePath, "error", err)
		}
	}
	return footprint{geom: geom, raw: raw}, nil
}

// readCache loads the cached footprint. A corrupt cache is deleted.
func (c *Coverage) readCache() (footprint, bool) {
	data, err := os.ReadFile(c.cachePath)
	if err != nil {
		return footprint{}, false
	}
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil || g.Geometry() == nil {
		c.logger.Warn("discarding unreadable coverage cache", "path", c.cachePath, "error", err)
		_ = os.Remove(c.cachePath)
		return footprint{}, false
	}
	return footprint{geom: g.Geometry(), raw: data}, true
}

func (c *Coverage) fromBoundary() (orb.Geometry, error) {
	geoms, err := c.geo.ReadWGS84(c.boundaryPath)
	if err != nil {
		return nil, fmt.Errorf("read boundary: %w", err)
	}
	var mp orb.MultiPolygon
	for _, g := range geoms {
		switch v := g.(type) {
		case orb.Polygon:
			mp = append(mp, v)
		case orb.MultiPolygon:
			mp = append(mp, v...)
		}
	}
	if len(mp) == 0 {
		return nil, errors.New("boundary has no polygons")
	}
	if len(mp) == 1 {
		return mp[0], nil
	}
	return mp, nil
}

// fromRasters uses the grids on disk. Pipeline runs delete their derived
// GeoTIFFs, so the downloaded archives count as well.
func (c *Coverage) fromRasters() (orb.Geometry, error) {
	if _, err := os.Stat(c.rasterDir); err != nil {
		return nil, errors.New("raster data directory not found")
	}
	var grids []string
	err := filepath.WalkDir(c.rasterDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isGrid(path) {
			grids = append(grids, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan rasters: %w", err)
	}
	if len(grids) == 0 {
		return nil, errors.New("no raster files found for coverage")
	}
	return c.geo.RasterFootprint(grids, c.proj.WKT)
}

func isGrid(path string) bool {
	name := strings.ToLower(filepath.Base(path))
	for _, suffix := range []string{".tif", ".asc", ".asc.gz", ".zip"} {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
