// Package vector reprojects and dissolves the user's region of interest.
package vector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/zonal-climate-analyzer/internal/domain"
)

// Ops is the vector capability set the Preparer needs.
type Ops interface {
	// SpatialRef returns the WKT of the layer's coordinate system, or "" when undefined.
	SpatialRef(path string) (string, error)
	// AuthorityID names a spatial reference, e.g. "EPSG31467".
	AuthorityID(wkt string) (string, error)
	// Reproject writes all features of src to the shapefile dst in the target WKT.
	Reproject(src, dst, wkt string) error
	// Dissolve writes the union of all features of src to dst as a single feature.
	Dissolve(src, dst string) error
}

// Preparer turns a vector file into the dissolved analysis region.
type Preparer struct {
	ops    Ops
	proj   domain.Projection
	outDir string
	logger *slog.Logger
}

// NewPreparer creates a Preparer writing its shapefiles to outDir.
func NewPreparer(ops Ops, proj domain.Projection, outDir string, logger *slog.Logger) *Preparer {
	return &Preparer{ops: ops, proj: proj, outDir: outDir, logger: logger}
}

// Prepare reprojects input into the analysis projection and dissolves its
// features. Inputs without a coordinate system are rejected with domain.ErrMissingCRS.
func (p *Preparer) Prepare(ctx context.Context, input string) (domain.RegionOfInterest, error) {
	wkt, err := p.ops.SpatialRef(input)
	if err != nil {
		return domain.RegionOfInterest{}, fmt.Errorf("read %s: %w", filepath.Base(input), err)
	}
	if wkt == "" {
		return domain.RegionOfInterest{}, fmt.Errorf("%s: %w", filepath.Base(input), domain.ErrMissingCRS)
	}

	authID, err := p.ops.AuthorityID(p.proj.WKT)
	if err != nil {
		return domain.RegionOfInterest{}, fmt.Errorf("identify projection: %w", err)
	}

	if err := os.MkdirAll(p.outDir, 0o755); err != nil {
		return domain.RegionOfInterest{}, fmt.Errorf("create shape dir: %w", err)
	}

	stem := Stem(input)
	reprojected := filepath.Join(p.outDir, stem+"_"+authID+".shp")
	if err := p.ops.Reproject(input, reprojected, p.proj.WKT); err != nil {
		return domain.RegionOfInterest{}, fmt.Errorf("reproject %s: %w", filepath.Base(input), err)
	}
	if err := ctx.Err(); err != nil {
		return domain.RegionOfInterest{}, err
	}

	dissolved := filepath.Join(p.outDir, stem+"_"+authID+"_dissolved.shp")
	if err := p.ops.Dissolve(reprojected, dissolved); err != nil {
		return domain.RegionOfInterest{}, fmt.Errorf("dissolve %s: %w", filepath.Base(reprojected), err)
	}

	p.logger.Info("region prepared", "input", input, "region", dissolved, "crs", authID)
	return domain.RegionOfInterest{Path: dissolved, SourceStem: stem}, nil
}

// Stem is the file name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
