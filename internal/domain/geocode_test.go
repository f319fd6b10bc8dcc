package domain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock geocoder ---

type mockGeocoder struct {
	result GeocodingResult
	err    error
	calls  int
	lat    float64
	lon    float64
}

func (m *mockGeocoder) ReverseGeocode(_ context.Context, lat, lon float64) (GeocodingResult, error) {
	m.calls++
	m.lat, m.lon = lat, lon
	return m.result, m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func square(x0, y0, size float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{x0, y0}, {x0 + size, y0}, {x0 + size, y0 + size}, {x0, y0 + size}, {x0, y0},
	}}
}

// --- tests ---

func TestRegionCentroid_Square(t *testing.T) {
	c, ok := RegionCentroid([]orb.Geometry{square(10, 50, 2)})
	require.True(t, ok)
	assert.InDelta(t, 11.0, c.Lon(), 1e-9)
	assert.InDelta(t, 51.0, c.Lat(), 1e-9)
}

func TestRegionCentroid_NoPolygons(t *testing.T) {
	_, ok := RegionCentroid([]orb.Geometry{orb.Point{1, 2}})
	assert.False(t, ok)
}

func TestDescribeRegion_NilGeocoder(t *testing.T) {
	place := DescribeRegion(context.Background(), []orb.Geometry{square(10, 50, 1)}, nil, discardLogger())
	assert.Nil(t, place)
}

func TestDescribeRegion_ReverseGeocode(t *testing.T) {
	geo := &mockGeocoder{
		result: GeocodingResult{FormattedAddress: "Kassel, Hesse, Germany", PlaceName: "Kassel"},
	}

	place := DescribeRegion(context.Background(), []orb.Geometry{square(9, 51, 1)}, geo, discardLogger())

	require.NotNil(t, place)
	assert.Equal(t, "Kassel", place.Name)
	assert.Equal(t, "Kassel, Hesse, Germany", place.Address)
	assert.Equal(t, 1, geo.calls)
	assert.InDelta(t, 51.5, geo.lat, 1e-9)
	assert.InDelta(t, 9.5, geo.lon, 1e-9)
}

func TestDescribeRegion_ErrorDegradesGracefully(t *testing.T) {
	geo := &mockGeocoder{err: errors.New("timeout")}
	place := DescribeRegion(context.Background(), []orb.Geometry{square(9, 51, 1)}, geo, discardLogger())
	assert.Nil(t, place)
	assert.Equal(t, 1, geo.calls)
}

func TestDescribeRegion_EmptyResult(t *testing.T) {
	geo := &mockGeocoder{}
	place := DescribeRegion(context.Background(), []orb.Geometry{square(9, 51, 1)}, geo, discardLogger())
	assert.Nil(t, place)
}
