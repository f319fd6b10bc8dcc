package domain

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RegionOfInterest is the dissolved analysis polygon stored as a vector file
// in the analysis coordinate system.
type RegionOfInterest struct {
	Path string
	// SourceStem is the stem of the file the user submitted; output artifacts
	// are prefixed with it.
	SourceStem string
}

// Name is the region file stem, e.g. "parcel_EPSG31467_dissolved".
func (r RegionOfInterest) Name() string {
	return strings.TrimSuffix(filepath.Base(r.Path), filepath.Ext(r.Path))
}

// Projection is the fixed analysis spatial reference.
type Projection struct {
	WKT string
}

// LoadProjection reads a WKT projection definition such as gk3.prj.
func LoadProjection(path string) (Projection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Projection{}, fmt.Errorf("read projection: %w", err)
	}
	wkt := strings.TrimSpace(string(data))
	if wkt == "" {
		return Projection{}, fmt.Errorf("projection file %s is empty", path)
	}
	return Projection{WKT: wkt}, nil
}
