package domain

import (
	"context"
	"log/slog"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Place labels a region by the place nearest to its centroid.
type Place struct {
	Name    string  `json:"name"`
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// RegionCentroid returns the area-weighted centroid of WGS84 polygons.
// ok is false when the polygons have no area.
func RegionCentroid(geoms []orb.Geometry) (orb.Point, bool) {
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
		return orb.Point{}, false
	}
	centroid, area := planar.CentroidArea(mp)
	if area <= 0 {
		return orb.Point{}, false
	}
	return centroid, true
}

// DescribeRegion reverse geocodes the region centroid. A nil geocoder or a
// failed lookup yields nil; the analysis never depends on it.
func DescribeRegion(ctx context.Context, geoms []orb.Geometry, geocoder Geocoder, logger *slog.Logger) *Place {
	if geocoder == nil {
		return nil
	}
	centroid, ok := RegionCentroid(geoms)
	if !ok {
		return nil
	}

	result, err := geocoder.ReverseGeocode(ctx, centroid.Lat(), centroid.Lon())
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"lat", centroid.Lat(),
			"lon", centroid.Lon(),
			"error", err,
		)
		return nil
	}
	if result.FormattedAddress == "" {
		return nil
	}
	return &Place{
		Name:    result.PlaceName,
		Address: result.FormattedAddress,
		Lat:     centroid.Lat(),
		Lon:     centroid.Lon(),
	}
}
