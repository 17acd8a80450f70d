package engine

import (
	"sync"
	"time"

	"dhcpd-go/pkg/ipam"
	"github.com/rs/zerolog"
)

// RateLimiter provides per-MAC rate limiting for DHCP requests, a guard
// against pool exhaustion from a misbehaving or hostile client.
type RateLimiter struct {
	mu           sync.Mutex
	requests     map[ipam.MAC][]time.Time
	maxPerMinute int
	logger       zerolog.Logger
	stopCh       chan struct{}
}

// NewRateLimiter creates a rate limiter. A non-positive limit defaults
// to 10 requests per minute per MAC.
func NewRateLimiter(maxPerMinute int, logger zerolog.Logger) *RateLimiter {
	if maxPerMinute <= 0 {
		maxPerMinute = 10
	}
	return &RateLimiter{
		requests:     make(map[ipam.MAC][]time.Time),
		maxPerMinute: maxPerMinute,
		logger:       logger.With().Str("component", "ratelimit").Logger(),
		stopCh:       make(chan struct{}),
	}
}

// Allowed checks whether a MAC may make another request and records it.
func (rl *RateLimiter) Allowed(mac ipam.MAC) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-1 * time.Minute)

	valid := rl.requests[mac][:0]
	for _, t := range rl.requests[mac] {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	rl.requests[mac] = valid

	if len(valid) >= rl.maxPerMinute {
		rl.logger.Warn().
			Str("mac", mac.String()).
			Int("requests", len(valid)).
			Msg("DHCP rate limit exceeded, dropping request")
		return false
	}

	rl.requests[mac] = append(valid, now)
	return true
}

// Start begins the background cleanup goroutine.
func (rl *RateLimiter) Start() {
	go rl.cleanupLoop()
}

// Stop terminates the background cleanup goroutine.
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// cleanupLoop drops MACs that have gone quiet so the map cannot grow
// without bound.
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			cutoff := time.Now().Add(-1 * time.Minute)
			for mac, requests := range rl.requests {
				valid := requests[:0]
				for _, t := range requests {
					if t.After(cutoff) {
						valid = append(valid, t)
					}
				}
				if len(valid) == 0 {
					delete(rl.requests, mac)
				} else {
					rl.requests[mac] = valid
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}
