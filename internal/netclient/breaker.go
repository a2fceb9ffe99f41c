package netclient

import (
	"time"

	"github.com/sony/gobreaker"
)

// newBreaker builds the REST client's circuit breaker. The thresholds
// are deliberately loose: the feed's strategies retry forever, so the
// breaker exists to stop hammering a venue that is hard down, not to
// shed load on sporadic faults.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	st := gobreaker.Settings{Name: name}
	st.Interval = 60 * time.Second
	st.Timeout = 10 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		if counts.ConsecutiveFailures >= 10 {
			return true
		}
		if counts.Requests < 40 {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) > 0.9
	}
	return gobreaker.NewCircuitBreaker(st)
}
