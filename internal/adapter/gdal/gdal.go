// Package gdal implements the geospatial capabilities of the analyzer on top
// of GDAL/OGR: raster georeferencing, vector reprojection and dissolve,
// zonal overlay, upload inspection and coverage footprints.
package gdal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const (
	shapefileDriver = godal.DriverName("ESRI Shapefile")
	memDriver       = godal.DriverName("MEM")
)

var registerOnce sync.Once

var errNoFeatures = errors.New("vector file has no features")

// GIS is the GDAL-backed capability set. It is safe for sequential use.
type GIS struct {
	logger *slog.Logger
}

// New registers the GDAL drivers once per process and returns a GIS.
func New(logger *slog.Logger) *GIS {
	registerOnce.Do(godal.RegisterAll)
	return &GIS{logger: logger}
}

// logGDAL downgrades GDAL warnings to debug logs and turns failures into errors.
func (g *GIS) logGDAL(ec godal.ErrorCategory, code int, msg string) error {
	if ec <= godal.CE_Warning {
		g.logger.Debug("gdal", "code", code, "message", msg)
		return nil
	}
	return fmt.Errorf("gdal error %d: %s", code, msg)
}

func (g *GIS) openVector(path string) (*godal.Dataset, error) {
	ds, err := godal.Open(path, godal.VectorOnly(), godal.ErrLogger(g.logGDAL))
	if err != nil {
		return nil, fmt.Errorf("open vector %s: %w", filepath.Base(path), err)
	}
	return ds, nil
}

func (g *GIS) openRaster(path string) (*godal.Dataset, error) {
	ds, err := godal.Open(path, godal.RasterOnly(), godal.ErrLogger(g.logGDAL))
	if err != nil {
		return nil, fmt.Errorf("open raster %s: %w", filepath.Base(path), err)
	}
	return ds, nil
}

// firstLayer returns the first layer holding at least one feature.
func firstLayer(ds *godal.Dataset) (godal.Layer, bool) {
	for _, l := range ds.Layers() {
		if n, err := l.FeatureCount(); err == nil && n > 0 {
			return l, true
		}
	}
	return godal.Layer{}, false
}

// layerWKT returns the layer's spatial reference as WKT, or "" when unset.
func layerWKT(l godal.Layer) string {
	sr := l.SpatialRef()
	if sr == nil {
		return ""
	}
	wkt, err := sr.WKT()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(wkt)
}

// eachGeometry calls fn with the geometry of every feature of the first
// non-empty layer. Features without geometry are skipped.
func (g *GIS) eachGeometry(path string, fn func(l godal.Layer, geom *godal.Geometry) error) error {
	ds, err := g.openVector(path)
	if err != nil {
		return err
	}
	defer ds.Close()

	layer, ok := firstLayer(ds)
	if !ok {
		return fmt.Errorf("%s: %w", filepath.Base(path), errNoFeatures)
	}
	layer.ResetReading()
	for feat := layer.NextFeature(); feat != nil; feat = layer.NextFeature() {
		geom := feat.Geometry()
		if geom == nil || geom.Empty() {
			feat.Close()
			continue
		}
		err := fn(layer, geom)
		feat.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func toOrb(geom *godal.Geometry) (orb.Geometry, error) {
	raw, err := geom.GeoJSON()
	if err != nil {
		return nil, fmt.Errorf("export geometry: %w", err)
	}
	gj, err := geojson.UnmarshalGeometry([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("decode geometry: %w", err)
	}
	return gj.Geometry(), nil
}

func fromOrb(geom orb.Geometry) (*godal.Geometry, error) {
	raw, err := geojson.NewGeometry(geom).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode geometry: %w", err)
	}
	out, err := godal.NewGeometryFromGeoJSON(string(raw))
	if err != nil {
		return nil, fmt.Errorf("import geometry: %w", err)
	}
	return out, nil
}

// removeShapefile deletes a shapefile and its sidecar files.
func removeShapefile(path string) {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	for _, ext := range []string{".shp", ".shx", ".dbf", ".prj", ".cpg"} {
		_ = os.Remove(base + ext)
	}
}

// shapefileWriter appends polygon features to a new shapefile.
type shapefileWriter struct {
	ds    *godal.Dataset
	layer godal.Layer
}

func newShapefileWriter(path string, sr *godal.SpatialRef) (*shapefileWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create shapefile dir: %w", err)
	}
	removeShapefile(path)

	ds, err := godal.CreateVector(shapefileDriver, path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	layer, err := ds.CreateLayer(name, sr, godal.GTMultiPolygon)
	if err != nil {
		ds.Close()
		return nil, fmt.Errorf("create layer %s: %w", name, err)
	}
	return &shapefileWriter{ds: ds, layer: layer}, nil
}

func (w *shapefileWriter) add(geom *godal.Geometry) error {
	feat, err := w.layer.NewFeature(geom)
	if err != nil {
		return fmt.Errorf("write feature: %w", err)
	}
	feat.Close()
	return nil
}

func (w *shapefileWriter) Close() error {
	return w.ds.Close()
}
