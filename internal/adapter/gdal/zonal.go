package gdal

import (
	"fmt"
	"math"
	"path/filepath"

	"github.com/airbusgeo/godal"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/zonal-climate-analyzer/internal/domain"
)

// window is a pixel rectangle of a raster.
type window struct {
	x, y, w, h int
}

// ZonalStats returns min, max, mean and count of the raster cells each
// feature of the region touches. Nodata and NaN cells are ignored.
func (g *GIS) ZonalStats(regionPath, rasterPath string) ([]domain.ZonalStats, error) {
	rds, err := g.openRaster(rasterPath)
	if err != nil {
		return nil, err
	}
	defer rds.Close()

	gt, err := rds.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("geotransform of %s: %w", filepath.Base(rasterPath), err)
	}
	if gt[2] != 0 || gt[4] != 0 {
		return nil, fmt.Errorf("%s: rotated rasters are not supported", filepath.Base(rasterPath))
	}
	bands := rds.Bands()
	if len(bands) == 0 {
		return nil, fmt.Errorf("%s has no bands", filepath.Base(rasterPath))
	}
	band := bands[0]
	nodata, hasNoData := band.NoData()
	size := rds.Structure()

	var out []domain.ZonalStats
	err = g.eachGeometry(regionPath, func(_ godal.Layer, geom *godal.Geometry) error {
		b, err := geom.Bounds()
		if err != nil {
			return fmt.Errorf("geometry bounds: %w", err)
		}
		win := pixelWindow(gt, b, size.SizeX, size.SizeY)
		if win.w <= 0 || win.h <= 0 {
			out = append(out, domain.ZonalStats{})
			return nil
		}

		mask, err := rasterizeMask(gt, win, geom)
		if err != nil {
			return err
		}
		data := make([]float64, win.w*win.h)
		if err := band.Read(win.x, win.y, data, win.w, win.h); err != nil {
			return fmt.Errorf("read %s: %w", filepath.Base(rasterPath), err)
		}

		values := make([]float64, 0, len(data))
		for i, v := range data {
			if mask[i] == 0 || math.IsNaN(v) || (hasNoData && v == nodata) {
				continue
			}
			values = append(values, v)
		}
		out = append(out, summarize(values))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// pixelWindow clamps the pixel rectangle covering bounds to the raster.
func pixelWindow(gt [6]float64, b [4]float64, sizeX, sizeY int) window {
	x0 := int(math.Floor((b[0] - gt[0]) / gt[1]))
	x1 := int(math.Ceil((b[2] - gt[0]) / gt[1]))
	// gt[5] is negative for north-up rasters, so maxY maps to the top row.
	y0 := int(math.Floor((b[3] - gt[3]) / gt[5]))
	y1 := int(math.Ceil((b[1] - gt[3]) / gt[5]))
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	x0, y0 = max(x0, 0), max(y0, 0)
	x1, y1 = min(x1, sizeX), min(y1, sizeY)
	return window{x: x0, y: y0, w: x1 - x0, h: y1 - y0}
}

// rasterizeMask burns geom into an in-memory byte grid aligned with win,
// marking every touched cell.
func rasterizeMask(gt [6]float64, win window, geom *godal.Geometry) ([]byte, error) {
	mem, err := godal.Create(memDriver, "", 1, godal.Byte, win.w, win.h)
	if err != nil {
		return nil, fmt.Errorf("create mask: %w", err)
	}
	defer mem.Close()

	origin := [6]float64{
		gt[0] + float64(win.x)*gt[1], gt[1], 0,
		gt[3] + float64(win.y)*gt[5], 0, gt[5],
	}
	if err := mem.SetGeoTransform(origin); err != nil {
		return nil, fmt.Errorf("set mask transform: %w", err)
	}
	if err := mem.RasterizeGeometry(geom, godal.AllTouched(), godal.Values(1)); err != nil {
		return nil, fmt.Errorf("rasterize region: %w", err)
	}

	mask := make([]byte, win.w*win.h)
	if err := mem.Bands()[0].Read(0, 0, mask, win.w, win.h); err != nil {
		return nil, fmt.Errorf("read mask: %w", err)
	}
	return mask, nil
}

func summarize(values []float64) domain.ZonalStats {
	if len(values) == 0 {
		return domain.ZonalStats{}
	}
	lo, hi, mean := floats.Min(values), floats.Max(values), stat.Mean(values, nil)
	return domain.ZonalStats{Min: &lo, Max: &hi, Mean: &mean, Count: len(values)}
}
