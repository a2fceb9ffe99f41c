// Package netclient is the thin uniform transport under the feed: a
// JSON GET/POST client with per-host rate limiting, circuit breaking
// and bounded retries, plus a WebSocket session wrapper whose blocked
// reads are released by closing the session. Both pieces are
// injectable so a host process can substitute its own stack and tests
// can point everything at the mock exchange server.
package netclient

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter gates outbound requests per host. The default is a token
// bucket per host; hosts embedding the feed may inject their own.
type Limiter interface {
	Wait(ctx context.Context, host string) error
}

// PerHost is a token-bucket limiter keyed by host.
type PerHost struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// NewPerHost builds a per-host limiter with the given steady rate and
// burst capacity.
func NewPerHost(rps float64, burst int) *PerHost {
	return &PerHost{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (l *PerHost) get(host string) *rate.Limiter {
	l.mu.RLock()
	limiter, ok := l.limiters[host]
	l.mu.RUnlock()
	if ok {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// Double-check after acquiring the write lock.
	if limiter, ok := l.limiters[host]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(rate.Limit(l.rps), l.burst)
	l.limiters[host] = limiter
	return limiter
}

// Wait blocks until a request for the host is allowed or the context
// is cancelled.
func (l *PerHost) Wait(ctx context.Context, host string) error {
	return l.get(host).Wait(ctx)
}

// Allow reports whether a request for the host may proceed right now.
func (l *PerHost) Allow(host string) bool {
	return l.get(host).Allow()
}

// SetRPS updates the steady rate on every existing host bucket.
func (l *PerHost) SetRPS(rps float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rps = rps
	for _, limiter := range l.limiters {
		limiter.SetLimit(rate.Limit(rps))
	}
}
