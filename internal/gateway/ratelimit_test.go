package gateway

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_PerClientWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewRateLimiter(3, clock)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("10.0.0.1"), "request %d", i)
	}
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"), "clients are limited independently")

	clock.Advance(time.Minute)
	assert.True(t, rl.Allow("10.0.0.1"))
}

func TestRateLimiter_RollingWindowHoldsTheCeiling(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewRateLimiter(60, clock)

	allowed := 0
	for i := 0; i < 60; i++ {
		if rl.Allow("10.0.0.1") {
			allowed++
		}
	}
	clock.Advance(59 * time.Second)
	for i := 0; i < 100; i++ {
		if rl.Allow("10.0.0.1") {
			allowed++
		}
	}
	assert.Equal(t, 60, allowed, "at most the ceiling within one minute")

	// The burst at t=0 leaves the window one second later.
	clock.Advance(time.Second)
	assert.True(t, rl.Allow("10.0.0.1"))
}

func TestRateLimiter_SpreadRequestsSlideOut(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewRateLimiter(2, clock)

	assert.True(t, rl.Allow("c"))
	clock.Advance(30 * time.Second)
	assert.True(t, rl.Allow("c"))
	assert.False(t, rl.Allow("c"))

	clock.Advance(30 * time.Second)
	assert.True(t, rl.Allow("c"), "the first request left the window")
	assert.False(t, rl.Allow("c"))
}

func TestRateLimiter_ZeroDisables(t *testing.T) {
	rl := NewRateLimiter(0, clockwork.NewFakeClock())
	for i := 0; i < 1000; i++ {
		assert.True(t, rl.Allow("10.0.0.1"))
	}
}

func TestRateLimiter_ForgetsIdleClients(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewRateLimiter(1, clock)

	assert.True(t, rl.Allow("10.0.0.1"))
	clock.Advance(idleLimiter + time.Minute)
	assert.True(t, rl.Allow("10.0.0.2"))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.clients, "10.0.0.1")
}
