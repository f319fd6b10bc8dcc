package mapbox

import (
	"container/list"
	"context"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/zonal-climate-analyzer/internal/domain"
	"github.com/couchcryptid/zonal-climate-analyzer/internal/observability"
)

// placeTTL bounds how long a region name is reused. Mapbox allows caching
// reverse results for up to 30 days; a day keeps renamed places fresh.
const placeTTL = 24 * time.Hour

// CachedGeocoder wraps a Geocoder with an in-memory cache of place names
// per centroid cell.
type CachedGeocoder struct {
	inner   domain.Geocoder
	places  *placeCache
	metrics *observability.Metrics
}

// NewCachedGeocoder creates a cache decorator around a geocoder holding at
// most maxEntries places.
func NewCachedGeocoder(inner domain.Geocoder, maxEntries int, metrics *observability.Metrics) *CachedGeocoder {
	return &CachedGeocoder{
		inner:   inner,
		places:  newPlaceCache(maxEntries, placeTTL, clockwork.NewRealClock()),
		metrics: metrics,
	}
}

// ReverseGeocode answers repeated regions from the cache. Redrawn polygons
// whose centroid lands in the same cell share an entry.
func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	key := cellAt(lat, lon)
	result, state := c.places.lookup(key)
	c.metrics.GeocodeCache.WithLabelValues(state).Inc()
	if state == "hit" {
		return result, nil
	}
	result, err := c.inner.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		return result, err
	}
	// Open sea and other misses are asked again next time.
	if result.FormattedAddress != "" {
		c.places.store(key, result)
	}
	return result, nil
}

// cellPrecision rounds coordinates to 1e-4 degrees, about 10 m.
const cellPrecision = 1e4

// cell is a centroid snapped to the cache grid.
type cell struct {
	lat, lon int32
}

func cellAt(lat, lon float64) cell {
	return cell{
		lat: int32(math.Round(lat * cellPrecision)),
		lon: int32(math.Round(lon * cellPrecision)),
	}
}

type place struct {
	key    cell
	result domain.GeocodingResult
	stored time.Time
}

// placeCache is a size-bounded, least recently used cache whose entries also
// expire after ttl.
type placeCache struct {
	size  int
	ttl   time.Duration
	clock clockwork.Clock

	mu     sync.Mutex
	recent *list.List // of *place, most recently used first
	index  map[cell]*list.Element
}

func newPlaceCache(size int, ttl time.Duration, clock clockwork.Clock) *placeCache {
	return &placeCache{
		size:   max(size, 1),
		ttl:    ttl,
		clock:  clock,
		recent: list.New(),
		index:  make(map[cell]*list.Element, size),
	}
}

// lookup returns the cached result and whether it was a hit, a miss, or an
// expired entry that has now been dropped.
func (c *placeCache) lookup(key cell) (domain.GeocodingResult, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		return domain.GeocodingResult{}, "miss"
	}
	p := el.Value.(*place)
	if c.clock.Since(p.stored) >= c.ttl {
		c.drop(el)
		return domain.GeocodingResult{}, "expired"
	}
	c.recent.MoveToFront(el)
	return p.result, "hit"
}

func (c *placeCache) store(key cell, result domain.GeocodingResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if el, ok := c.index[key]; ok {
		p := el.Value.(*place)
		p.result, p.stored = result, now
		c.recent.MoveToFront(el)
		return
	}
	c.index[key] = c.recent.PushFront(&place{key: key, result: result, stored: now})
	for c.recent.Len() > c.size {
		c.drop(c.recent.Back())
	}
}

func (c *placeCache) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recent.Len()
}

func (c *placeCache) drop(el *list.Element) {
	c.recent.Remove(el)
	delete(c.index, el.Value.(*place).key)
}
