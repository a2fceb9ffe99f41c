package candles

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrMisaligned rejects bars whose open time is not a multiple of the
// store's interval. Adapters are expected to deliver aligned bars, so
// hitting this indicates a parsing defect rather than a protocol error.
var ErrMisaligned = errors.New("bar open time not aligned to interval")

// Store is the bounded sliding window of bars for one (pair, interval).
// One strategy writes at a time; consumers snapshot concurrently. All
// resident bars have distinct open times and are kept in ascending
// order.
type Store struct {
	mu       sync.RWMutex
	pair     string
	interval int64
	capacity int
	bars     []Bar
}

// NewStore builds an empty window bound to an interval duration in
// seconds and a positive capacity.
func NewStore(pair string, intervalSeconds int64, capacity int) (*Store, error) {
	if intervalSeconds <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %d", intervalSeconds)
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity must be positive, got %d", capacity)
	}
	return &Store{
		pair:     pair,
		interval: intervalSeconds,
		capacity: capacity,
		bars:     make([]Bar, 0, capacity),
	}, nil
}

// Pair returns the trading pair the window is bound to.
func (s *Store) Pair() string { return s.pair }

// Interval returns the bar duration in seconds.
func (s *Store) Interval() int64 { return s.interval }

// Capacity returns the maximum number of resident bars.
func (s *Store) Capacity() int { return s.capacity }

// Offer applies the window rules to one incoming bar: replace on equal
// open time (the newer message is authoritative for an in-progress
// slot), ignore anything older than the oldest resident bar, insert in
// ascending position otherwise, and evict the oldest once the window
// exceeds capacity. Misaligned open times are rejected with
// ErrMisaligned.
//
// REST backfills and stream frames interleave out of order as a matter
// of course; these rules make the final window a function of the set
// of (open time, latest payload) pairs seen, not of arrival order.
func (s *Store) Offer(b Bar) error {
	if b.OpenTime%s.interval != 0 {
		return fmt.Errorf("%w: open_time=%d interval=%d", ErrMisaligned, b.OpenTime, s.interval)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.bars)
	if n == 0 {
		s.bars = append(s.bars, b)
		return nil
	}
	if b.OpenTime < s.bars[0].OpenTime {
		return nil
	}
	i := sort.Search(n, func(j int) bool { return s.bars[j].OpenTime >= b.OpenTime })
	if i < n && s.bars[i].OpenTime == b.OpenTime {
		s.bars[i] = b
		return nil
	}
	s.bars = append(s.bars, Bar{})
	copy(s.bars[i+1:], s.bars[i:])
	s.bars[i] = b
	if len(s.bars) > s.capacity {
		copy(s.bars, s.bars[1:])
		s.bars = s.bars[:s.capacity]
	}
	return nil
}

// Snapshot returns a stable copy of the window; the caller never
// aliases internal storage.
func (s *Store) Snapshot() []Bar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Bar, len(s.bars))
	copy(out, s.bars)
	return out
}

// Table returns the ten-column projection of the current window.
func (s *Store) Table() Table {
	return TableOf(s.Snapshot())
}

// Len returns the number of resident bars.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bars)
}

// Oldest returns the earliest resident bar, if any.
func (s *Store) Oldest() (Bar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.bars) == 0 {
		return Bar{}, false
	}
	return s.bars[0], true
}

// Newest returns the latest resident bar, if any.
func (s *Store) Newest() (Bar, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.bars) == 0 {
		return Bar{}, false
	}
	return s.bars[len(s.bars)-1], true
}

// Clear drops every resident bar while keeping the binding.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars = s.bars[:0]
}

// SortedAndEquidistant reports whether every pair of consecutive
// resident bars is exactly one interval apart. Empty and single-bar
// windows count as gap free.
func (s *Store) SortedAndEquidistant() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SortedAndEquidistant(s.bars, s.interval)
}

// SortedAndEquidistant is the gap check over an external sequence.
func SortedAndEquidistant(bars []Bar, intervalSeconds int64) bool {
	for i := 1; i < len(bars); i++ {
		if bars[i].OpenTime-bars[i-1].OpenTime != intervalSeconds {
			return false
		}
	}
	return true
}
