package gateway

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/zonal-climate-analyzer/internal/domain"
)

// footprintGeo counts how often the raster footprint is computed.
type footprintGeo struct {
	fakeGeo
	mu       sync.Mutex
	calls    int
	paths    []string
	wkt      string
	boundary []orb.Geometry
}

func (f *footprintGeo) RasterFootprint(paths []string, fallbackWKT string) (orb.Geometry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.paths, f.wkt = paths, fallbackWKT
	return orb.Bound{Min: orb.Point{5, 47}, Max: orb.Point{16, 56}}.ToPolygon(), nil
}

func (f *footprintGeo) ReadWGS84(string) ([]orb.Geometry, error) { return f.boundary, nil }

var gk3 = domain.Projection{WKT: `PROJCS["DHDN / 3-degree Gauss-Kruger zone 3"]`}

func rasterDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "rasters", "frost_days")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "frost_days_1991.tif"), nil, 0o644))
	return filepath.Dir(dir)
}

func TestCoverage_FromRastersIsCached(t *testing.T) {
	geo := &footprintGeo{}
	cache := filepath.Join(t.TempDir(), "out", "data_coverage.geojson")
	c := NewCoverage(cache, "", rasterDir(t), gk3, geo, discardLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.Footprint()
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	geom, raw, err := c.Footprint()
	require.NoError(t, err)
	assert.Equal(t, 1, geo.calls)
	assert.Equal(t, orb.Point{5, 47}, geom.Bound().Min)
	assert.Contains(t, string(raw), `"Polygon"`)
	assert.FileExists(t, cache)

	// A new instance reads the cache instead of scanning rasters.
	again := NewCoverage(cache, "", t.TempDir(), gk3, geo, discardLogger())
	_, _, err = again.Footprint()
	require.NoError(t, err)
	assert.Equal(t, 1, geo.calls)
}

func TestCoverage_CorruptCacheIsRebuilt(t *testing.T) {
	geo := &footprintGeo{}
	cache := filepath.Join(t.TempDir(), "data_coverage.geojson")
	require.NoError(t, os.WriteFile(cache, []byte("{not json"), 0o644))

	_, _, err := NewCoverage(cache, "", rasterDir(t), gk3, geo, discardLogger()).Footprint()
	require.NoError(t, err)
	assert.Equal(t, 1, geo.calls)

	data, err := os.ReadFile(cache)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Polygon")
}

func TestCoverage_BoundaryWins(t *testing.T) {
	dir := t.TempDir()
	boundary := filepath.Join(dir, "german_boundary.shp")
	require.NoError(t, os.WriteFile(boundary, nil, 0o644))
	geo := &footprintGeo{boundary: []orb.Geometry{
		orb.Bound{Min: orb.Point{6, 48}, Max: orb.Point{8, 50}}.ToPolygon(),
		orb.MultiPolygon{orb.Bound{Min: orb.Point{9, 50}, Max: orb.Point{10, 51}}.ToPolygon()},
	}}

	geom, _, err := NewCoverage(filepath.Join(dir, "cov.geojson"), boundary, rasterDir(t), gk3, geo, discardLogger()).Footprint()
	require.NoError(t, err)
	mp, ok := geom.(orb.MultiPolygon)
	require.True(t, ok)
	assert.Len(t, mp, 2)
	assert.Zero(t, geo.calls)
}

func TestCoverage_NoRasters(t *testing.T) {
	geo := &footprintGeo{}
	c := NewCoverage(filepath.Join(t.TempDir(), "cov.geojson"), "", t.TempDir(), gk3, geo, discardLogger())

	_, _, err := c.Footprint()
	assert.ErrorContains(t, err, "no raster files found")
}

func TestCoverage_FromArchivedGrids(t *testing.T) {
	root := filepath.Join(t.TempDir(), "rasters")
	frost := filepath.Join(root, "frost_days")
	require.NoError(t, os.MkdirAll(frost, 0o755))
	for _, name := range []string{
		"grids_germany_annual_frost_days_1991.asc.gz",
		"grids_germany_annual_frost_days_1992.zip",
		"DESCRIPTION_frost_days.pdf",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(frost, name), nil, 0o644))
	}

	geo := &footprintGeo{}
	_, _, err := NewCoverage(filepath.Join(t.TempDir(), "cov.geojson"), "", root, gk3, geo, discardLogger()).Footprint()
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(frost, "grids_germany_annual_frost_days_1991.asc.gz"),
		filepath.Join(frost, "grids_germany_annual_frost_days_1992.zip"),
	}, geo.paths)
	assert.Equal(t, gk3.WKT, geo.wkt)
}
