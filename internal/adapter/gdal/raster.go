package gdal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/airbusgeo/godal"
	"github.com/klauspost/compress/zip"
	"github.com/paulmach/orb"
)

// HasSpatialRef reports whether the raster carries a coordinate system.
func (g *GIS) HasSpatialRef(path string) (bool, error) {
	ds, err := g.openRaster(path)
	if err != nil {
		return false, err
	}
	defer ds.Close()
	return ds.Projection() != "", nil
}

// WriteGeoTIFF writes band 1 of src to dst as an LZW-compressed Float32
// GeoTIFF tagged with wkt. dst appears only once fully written.
func (g *GIS) WriteGeoTIFF(src, dst, wkt string) error {
	ds, err := g.openRaster(src)
	if err != nil {
		return err
	}
	defer ds.Close()

	tmp := filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+".part")
	out, err := ds.Translate(tmp, []string{
		"-of", "GTiff",
		"-b", "1",
		"-ot", "Float32",
		"-a_srs", wkt,
		"-co", "COMPRESS=LZW",
	}, godal.ErrLogger(g.logGDAL))
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("translate %s: %w", filepath.Base(src), err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close %s: %w", filepath.Base(dst), err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", filepath.Base(dst), err)
	}
	return nil
}

// RasterFootprint returns the union of the rasters' extents in WGS84.
// Gzip and zip archives are read in place through GDAL's virtual file
// systems. Rasters without a coordinate system are taken to be in
// fallbackWKT, or skipped when it is empty.
func (g *GIS) RasterFootprint(paths []string, fallbackWKT string) (orb.Geometry, error) {
	wgs84, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return nil, fmt.Errorf("create WGS84 reference: %w", err)
	}
	defer wgs84.Close()

	var fallback *godal.Transform
	if fallbackWKT != "" {
		src, err := godal.NewSpatialRefFromWKT(fallbackWKT)
		if err != nil {
			return nil, fmt.Errorf("parse fallback spatial reference: %w", err)
		}
		defer src.Close()
		if fallback, err = godal.NewTransform(src, wgs84); err != nil {
			return nil, fmt.Errorf("create transform: %w", err)
		}
		defer fallback.Close()
	}

	var union *godal.Geometry
	defer func() {
		if union != nil {
			union.Close()
		}
	}()

	for _, path := range paths {
		box, err := g.extent(path, wgs84, fallback)
		if err != nil {
			return nil, err
		}
		if box == nil {
			continue
		}
		if union == nil {
			union = box
			continue
		}
		merged, err := union.Union(box)
		box.Close()
		if err != nil {
			return nil, fmt.Errorf("union extents: %w", err)
		}
		union.Close()
		union = merged
	}
	if union == nil {
		return nil, fmt.Errorf("no georeferenced raster among %d files", len(paths))
	}
	return toOrb(union)
}

func (g *GIS) extent(path string, wgs84 *godal.SpatialRef, fallback *godal.Transform) (*godal.Geometry, error) {
	name, err := virtualPath(path)
	if err != nil {
		return nil, err
	}
	ds, err := g.openRaster(name)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	if ds.Projection() != "" {
		b, err := ds.Bounds(wgs84)
		if err != nil {
			return nil, fmt.Errorf("bounds of %s: %w", filepath.Base(path), err)
		}
		return fromOrb(orb.Bound{Min: orb.Point{b[0], b[1]}, Max: orb.Point{b[2], b[3]}}.ToPolygon())
	}
	if fallback == nil {
		g.logger.Warn("raster without spatial reference left out of footprint", "path", path)
		return nil, nil
	}
	b, err := ds.Bounds()
	if err != nil {
		return nil, fmt.Errorf("bounds of %s: %w", filepath.Base(path), err)
	}
	box, err := fromOrb(orb.Bound{Min: orb.Point{b[0], b[1]}, Max: orb.Point{b[2], b[3]}}.ToPolygon())
	if err != nil {
		return nil, err
	}
	if err := box.Transform(fallback); err != nil {
		box.Close()
		return nil, fmt.Errorf("transform extent of %s: %w", filepath.Base(path), err)
	}
	return box, nil
}

// virtualPath maps a DWD archive onto the GDAL path of the grid inside it.
func virtualPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	lower := strings.ToLower(abs)
	switch {
	case strings.HasSuffix(lower, ".gz"):
		return "/vsigzip/" + abs, nil
	case strings.HasSuffix(lower, ".zip"):
		member, err := gridMember(abs)
		if err != nil {
			return "", err
		}
		return "/vsizip/" + abs + "/" + member, nil
	}
	return abs, nil
}

func gridMember(archive string) (string, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", filepath.Base(archive), err)
	}
	defer zr.Close()
	for _, f := range zr.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".asc") {
			return f.Name, nil
		}
	}
	return "", fmt.Errorf("no .asc grid in %s", filepath.Base(archive))
}
