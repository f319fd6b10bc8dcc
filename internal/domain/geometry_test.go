package domain

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

func TestCountVertices(t *testing.T) {
	holed := orb.Polygon{
		square(0, 0, 10)[0],
		orb.Ring{{2, 2}, {3, 2}, {3, 3}, {2, 2}},
	}

	tests := []struct {
		name string
		geom orb.Geometry
		want int
	}{
		{"polygon", square(0, 0, 1), 5},
		{"polygon with hole", holed, 9},
		{"multipolygon", orb.MultiPolygon{square(0, 0, 1), square(5, 5, 1)}, 10},
		{"collection", orb.Collection{square(0, 0, 1), orb.Point{1, 1}}, 5},
		{"line", orb.LineString{{0, 0}, {1, 1}}, 0},
		{"point", orb.Point{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CountVertices(tt.geom))
		})
	}
}

func TestIsPolygonal(t *testing.T) {
	assert.True(t, IsPolygonal(square(0, 0, 1)))
	assert.True(t, IsPolygonal(orb.MultiPolygon{square(0, 0, 1)}))
	assert.False(t, IsPolygonal(orb.LineString{{0, 0}, {1, 1}}))
	assert.False(t, IsPolygonal(nil))
}
