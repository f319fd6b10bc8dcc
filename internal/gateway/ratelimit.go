package gateway

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	rateWindow = time.Minute
	// idleLimiter is how long a client without requests is remembered.
	idleLimiter = 10 * time.Minute
)

// RateLimiter allows each client address a fixed number of requests in any
// rolling minute. A zero limit disables it.
type RateLimiter struct {
	perMin int
	clock  clockwork.Clock

	mu      sync.Mutex
	clients map[string][]time.Time
	sweep   time.Time
}

// NewRateLimiter creates a limiter for perMin requests per minute and client.
func NewRateLimiter(perMin int, clock clockwork.Clock) *RateLimiter {
	return &RateLimiter{
		perMin:  perMin,
		clock:   clock,
		clients: make(map[string][]time.Time),
	}
}

// Allow records one request from client and reports whether it may proceed.
// Rejected requests are not recorded.
func (r *RateLimiter) Allow(client string) bool {
	if r.perMin <= 0 {
		return true
	}
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.sweep) > idleLimiter {
		for k, hits := range r.clients {
			if len(hits) == 0 || now.Sub(hits[len(hits)-1]) > idleLimiter {
				delete(r.clients, k)
			}
		}
		r.sweep = now
	}

	// hits is oldest first; drop those that left the window.
	hits := r.clients[client]
	cut := 0
	for cut < len(hits) && now.Sub(hits[cut]) >= rateWindow {
		cut++
	}
	hits = hits[cut:]

	if len(hits) >= r.perMin {
		r.clients[client] = hits
		return false
	}
	r.clients[client] = append(hits, now)
	return true
}
