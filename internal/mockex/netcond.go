package mockex

import (
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"
)

// NetworkConditions shapes every handler's behavior before dispatch:
// artificial latency, probabilistic packet loss answered as 408, and
// probabilistic server faults answered as 502.
type NetworkConditions struct {
	Latency    time.Duration
	PacketLoss float64
	ErrorRate  float64
}

type conditions struct {
	mu  sync.RWMutex
	cur NetworkConditions
	rng *rand.Rand
}

func newConditions() *conditions {
	return &conditions{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (c *conditions) set(nc NetworkConditions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = nc
}

// apply simulates the configured conditions. The returned status is 0
// when the request may proceed.
func (c *conditions) apply() (status int) {
	c.mu.Lock()
	nc := c.cur
	loss := c.rng.Float64()
	fault := c.rng.Float64()
	c.mu.Unlock()

	if nc.Latency > 0 {
		time.Sleep(nc.Latency)
	}
	if nc.PacketLoss > 0 && loss < nc.PacketLoss {
		return http.StatusRequestTimeout
	}
	if nc.ErrorRate > 0 && fault < nc.ErrorRate {
		return http.StatusBadGateway
	}
	return 0
}

// rateLimiter is a per-IP sliding window of request weights.
type rateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	limit  int
	hits   map[string][]weightedHit
}

type weightedHit struct {
	at     time.Time
	weight int
}

func newRateLimiter(limitPerMinute int) *rateLimiter {
	return &rateLimiter{
		window: time.Minute,
		limit:  limitPerMinute,
		hits:   map[string][]weightedHit{},
	}
}

// allow charges the request's weight against the caller's window.
func (r *rateLimiter) allow(ip string, weight int) bool {
	if r.limit <= 0 {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-r.window)

	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.hits[ip][:0]
	total := 0
	for _, h := range r.hits[ip] {
		if h.at.After(cutoff) {
			kept = append(kept, h)
			total += h.weight
		}
	}
	if total+weight > r.limit {
		r.hits[ip] = kept
		return false
	}
	r.hits[ip] = append(kept, weightedHit{at: now, weight: weight})
	return true
}

// clientIP strips the port from a remote address.
func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
