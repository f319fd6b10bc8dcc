package gdal

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"

	"github.com/couchcryptid/zonal-climate-analyzer/internal/domain"
)

// coverTolerance widens the coverage footprint so polygons sharing its
// boundary still count as covered. Degrees.
const coverTolerance = 1e-9

// SpatialRef returns the WKT of the vector file's coordinate system, or ""
// when it has none.
func (g *GIS) SpatialRef(path string) (string, error) {
	ds, err := g.openVector(path)
	if err != nil {
		return "", err
	}
	defer ds.Close()

	layers := ds.Layers()
	if len(layers) == 0 {
		return "", fmt.Errorf("%s has no layers", filepath.Base(path))
	}
	return layerWKT(layers[0]), nil
}

// AuthorityID names a spatial reference by authority and code, e.g.
// "EPSG31467". References without a known code are named "custom".
func (g *GIS) AuthorityID(wkt string) (string, error) {
	sr, err := godal.NewSpatialRefFromWKT(wkt)
	if err != nil {
		return "", fmt.Errorf("parse spatial reference: %w", err)
	}
	defer sr.Close()

	_ = sr.AutoIdentifyEPSG()
	name, code := sr.AuthorityName(""), sr.AuthorityCode("")
	if name == "" || code == "" {
		return "custom", nil
	}
	return name + code, nil
}

// Reproject writes every feature of src to the shapefile dst in wkt.
func (g *GIS) Reproject(src, dst, wkt string) error {
	ds, err := g.openVector(src)
	if err != nil {
		return err
	}
	defer ds.Close()

	removeShapefile(dst)
	out, err := ds.VectorTranslate(dst, []string{
		"-f", string(shapefileDriver),
		"-t_srs", wkt,
		"-nlt", "PROMOTE_TO_MULTI",
		"-lco", "ENCODING=UTF-8",
	}, godal.ErrLogger(g.logGDAL))
	if err != nil {
		return fmt.Errorf("reproject %s: %w", filepath.Base(src), err)
	}
	return out.Close()
}

// Dissolve writes the union of all features of src to dst as one feature.
func (g *GIS) Dissolve(src, dst string) error {
	var (
		union *godal.Geometry
		sr    *godal.SpatialRef
		wkt   string
	)
	defer func() {
		if union != nil {
			union.Close()
		}
	}()

	err := g.eachGeometry(src, func(l godal.Layer, geom *godal.Geometry) error {
		if wkt == "" {
			wkt = layerWKT(l)
		}
		if union == nil {
			// Buffer(0) yields an owned, repaired copy of the first geometry.
			first, err := geom.Buffer(0, 8)
			if err != nil {
				return fmt.Errorf("copy geometry: %w", err)
			}
			union = first
			return nil
		}
		merged, err := union.Union(geom)
		if err != nil {
			return fmt.Errorf("union: %w", err)
		}
		union.Close()
		union = merged
		return nil
	})
	if err != nil {
		return err
	}
	if union == nil {
		return fmt.Errorf("%s: %w", filepath.Base(src), errNoFeatures)
	}

	if wkt != "" {
		if sr, err = godal.NewSpatialRefFromWKT(wkt); err != nil {
			return fmt.Errorf("parse spatial reference: %w", err)
		}
		defer sr.Close()
	}

	w, err := newShapefileWriter(dst, sr)
	if err != nil {
		return err
	}
	if err := w.add(union); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// ToShapefile converts the first non-empty layer of a GeoPackage or GeoJSON
// file into the shapefile dst, keeping geometries and coordinate system.
// Layers without a coordinate system are tagged with fallbackEPSG when it is
// positive.
func (g *GIS) ToShapefile(src, dst string, fallbackEPSG int) error {
	ds, err := g.openVector(src)
	if err != nil {
		return err
	}
	defer ds.Close()

	layer, ok := firstLayer(ds)
	if !ok {
		return fmt.Errorf("%s: %w", filepath.Base(src), errNoFeatures)
	}

	var sr *godal.SpatialRef
	switch wkt := layerWKT(layer); {
	case wkt != "":
		if sr, err = godal.NewSpatialRefFromWKT(wkt); err != nil {
			return fmt.Errorf("parse spatial reference: %w", err)
		}
		defer sr.Close()
	case fallbackEPSG > 0:
		if sr, err = godal.NewSpatialRefFromEPSG(fallbackEPSG); err != nil {
			return fmt.Errorf("create EPSG:%d reference: %w", fallbackEPSG, err)
		}
		defer sr.Close()
	}

	w, err := newShapefileWriter(dst, sr)
	if err != nil {
		return err
	}
	layer.ResetReading()
	for feat := layer.NextFeature(); feat != nil; feat = layer.NextFeature() {
		geom := feat.Geometry()
		if geom != nil && !geom.Empty() {
			if err := w.add(geom); err != nil {
				feat.Close()
				w.Close()
				return err
			}
		}
		feat.Close()
	}
	return w.Close()
}

// Inspect counts features and polygon vertices and reports whether the
// file declares a coordinate system.
func (g *GIS) Inspect(path string) (domain.VectorInfo, error) {
	var info domain.VectorInfo
	err := g.eachGeometry(path, func(l godal.Layer, geom *godal.Geometry) error {
		if info.Features == 0 {
			info.HasCRS = layerWKT(l) != ""
		}
		info.Features++
		o, err := toOrb(geom)
		if err != nil {
			return err
		}
		info.Vertices += domain.CountVertices(o)
		if domain.IsPolygonal(o) {
			info.Polygonal = true
		}
		return nil
	})
	if errors.Is(err, errNoFeatures) {
		return domain.VectorInfo{}, nil
	}
	return info, err
}

// ReadGeometries returns the file's geometries in its own coordinate system.
func (g *GIS) ReadGeometries(path string) ([]orb.Geometry, error) {
	var out []orb.Geometry
	err := g.eachGeometry(path, func(_ godal.Layer, geom *godal.Geometry) error {
		o, err := toOrb(geom)
		if err != nil {
			return err
		}
		out = append(out, o)
		return nil
	})
	return out, err
}

// ReadWGS84 returns the file's geometries as longitude/latitude. Layers
// without a coordinate system are taken to be WGS84 already.
func (g *GIS) ReadWGS84(path string) ([]orb.Geometry, error) {
	wgs84, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return nil, fmt.Errorf("create WGS84 reference: %w", err)
	}
	defer wgs84.Close()

	var (
		trn  *godal.Transform
		src  *godal.SpatialRef
		seen bool
		out  []orb.Geometry
	)
	defer func() {
		if trn != nil {
			trn.Close()
		}
		if src != nil {
			src.Close()
		}
	}()

	err = g.eachGeometry(path, func(l godal.Layer, geom *godal.Geometry) error {
		if !seen {
			seen = true
			if wkt := layerWKT(l); wkt != "" {
				var err error
				if src, err = godal.NewSpatialRefFromWKT(wkt); err != nil {
					return fmt.Errorf("parse spatial reference: %w", err)
				}
				if !src.IsSame(wgs84) {
					if trn, err = godal.NewTransform(src, wgs84); err != nil {
						return fmt.Errorf("create transform: %w", err)
					}
				}
			}
		}
		if trn != nil {
			if err := geom.Transform(trn); err != nil {
				return fmt.Errorf("transform geometry: %w", err)
			}
		}
		o, err := toOrb(geom)
		if err != nil {
			return err
		}
		out = append(out, o)
		return nil
	})
	return out, err
}

// Covers reports whether every inner geometry lies within outer, boundary
// included.
func (g *GIS) Covers(outer orb.Geometry, inner []orb.Geometry) (bool, error) {
	base, err := fromOrb(outer)
	if err != nil {
		return false, err
	}
	defer base.Close()

	area, err := base.Buffer(coverTolerance, 8)
	if err != nil {
		return false, fmt.Errorf("buffer coverage: %w", err)
	}
	defer area.Close()

	for _, in := range inner {
		geom, err := fromOrb(in)
		if err != nil {
			return false, err
		}
		ok := area.Contains(geom)
		geom.Close()
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
