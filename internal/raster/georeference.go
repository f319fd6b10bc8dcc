package raster

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/zonal-climate-analyzer/internal/domain"
)

// Georeferencer is the raster I/O capability the Preparer needs.
type Georeferencer interface {
	// HasSpatialRef reports whether the raster at path carries a coordinate system.
	HasSpatialRef(path string) (bool, error)
	// WriteGeoTIFF writes band 1 of src to dst as an LZW-compressed Float32
	// GeoTIFF tagged with the given WKT spatial reference.
	WriteGeoTIFF(src, dst, wkt string) error
}

// Preparer attaches the analysis projection to decompressed grids.
type Preparer struct {
	geo    Georeferencer
	proj   domain.Projection
	logger *slog.Logger
}

// NewPreparer creates a Preparer for one projection, loaded once by the caller.
func NewPreparer(geo Georeferencer, proj domain.Projection, logger *slog.Logger) *Preparer {
	return &Preparer{geo: geo, proj: proj, logger: logger}
}

// TIFFPath is the GeoTIFF written for an .asc grid.
func TIFFPath(ascPath string) string {
	ext := filepath.Ext(ascPath)
	if strings.EqualFold(ext, ".asc") {
		return strings.TrimSuffix(ascPath, ext) + ".tif"
	}
	return ascPath + ".tif"
}

// Georeference returns asset as a georeferenced raster, writing a GeoTIFF
// alongside the source when it has no spatial reference yet.
func (p *Preparer) Georeference(asset domain.RasterAsset) (domain.RasterAsset, error) {
	if asset.State == domain.StateGeoreferenced {
		return asset, nil
	}

	ok, err := p.geo.HasSpatialRef(asset.Path)
	if err != nil {
		return domain.RasterAsset{}, fmt.Errorf("inspect %s: %w", filepath.Base(asset.Path), err)
	}
	if ok {
		return domain.RasterAsset{Path: asset.Path, State: domain.StateGeoreferenced}, nil
	}

	dst := TIFFPath(asset.Path)
	if err := p.geo.WriteGeoTIFF(asset.Path, dst, p.proj.WKT); err != nil {
		return domain.RasterAsset{}, fmt.Errorf("georeference %s: %w", filepath.Base(asset.Path), err)
	}
	p.logger.Debug("raster georeferenced", "path", dst)
	return domain.RasterAsset{Path: dst, State: domain.StateGeoreferenced}, nil
}
