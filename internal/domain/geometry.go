package domain

import "github.com/paulmach/orb"

// VectorInfo summarizes an uploaded vector file before any reprojection.
type VectorInfo struct {
	Features int
	Vertices int
	HasCRS   bool
	// Polygonal is true when at least one feature is a (multi)polygon.
	Polygonal bool
}

// CountVertices counts the ring coordinates of polygonal geometries.
// Other geometry types count zero.
func CountVertices(g orb.Geometry) int {
	switch v := g.(type) {
	case orb.Polygon:
		n := 0
		for _, ring := range v {
			n += len(ring)
		}
		return n
	case orb.MultiPolygon:
		n := 0
		for _, p := range v {
			n += CountVertices(p)
		}
		return n
	case orb.Collection:
		n := 0
		for _, c := range v {
			n += CountVertices(c)
		}
		return n
	default:
		return 0
	}
}

// IsPolygonal reports whether g is a polygon or multipolygon.
func IsPolygonal(g orb.Geometry) bool {
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return true
	default:
		return false
	}
}
