package candles

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Magnitude thresholds for timestamp unit detection. A Unix seconds
// value stays below 1e10 until the year 2286, so anything larger must
// be a finer unit.
const (
	millisThreshold = 10_000_000_000
	microsThreshold = 10_000_000_000_000
	nanosThreshold  = 10_000_000_000_000_000
)

// Accepted calendar layouts for string timestamps without a numeric
// form. Layouts without a zone are interpreted as UTC.
var calendarLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// EnsureSeconds normalizes a wire timestamp to Unix seconds. Numeric
// values are scaled by magnitude (above 1e10 milliseconds, above 1e13
// microseconds, above 1e16 nanoseconds). Strings are tried as numbers
// first, then as calendar time with UTC assumed when no offset is
// present. time.Time values are taken as is.
func EnsureSeconds(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return scaleIntSeconds(x), nil
	case int:
		return scaleIntSeconds(int64(x)), nil
	case int32:
		return int64(x), nil
	case uint64:
		return scaleIntSeconds(int64(x)), nil
	case float64:
		return scaleFloatSeconds(x), nil
	case float32:
		return scaleFloatSeconds(float64(x)), nil
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return scaleIntSeconds(n), nil
		}
		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("timestamp %q: %w", x.String(), err)
		}
		return scaleFloatSeconds(f), nil
	case string:
		return parseStringSeconds(x)
	case time.Time:
		return x.Unix(), nil
	case nil:
		return 0, fmt.Errorf("nil timestamp")
	default:
		return 0, fmt.Errorf("cannot interpret %T as timestamp", v)
	}
}

func scaleIntSeconds(n int64) int64 {
	neg := false
	if n < 0 {
		neg, n = true, -n
	}
	switch {
	case n > nanosThreshold:
		n /= 1_000_000_000
	case n > microsThreshold:
		n /= 1_000_000
	case n > millisThreshold:
		n /= 1_000
	}
	if neg {
		return -n
	}
	return n
}

func scaleFloatSeconds(f float64) int64 {
	abs := f
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs > nanosThreshold:
		f /= 1_000_000_000
	case abs > microsThreshold:
		f /= 1_000_000
	case abs > millisThreshold:
		f /= 1_000
	}
	return int64(f)
}

func parseStringSeconds(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return scaleIntSeconds(n), nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return scaleFloatSeconds(f), nil
	}
	for _, layout := range calendarLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix(), nil
		}
	}
	return 0, fmt.Errorf("cannot parse timestamp %q", s)
}

// FloorTo rounds a Unix-seconds timestamp down to the nearest multiple
// of the interval.
func FloorTo(ts, intervalSeconds int64) int64 {
	if intervalSeconds <= 0 {
		return ts
	}
	r := ts % intervalSeconds
	if r < 0 {
		r += intervalSeconds
	}
	return ts - r
}

// RangeFor returns the [start, end] span covering the most recent
// count bars of the given interval, with end pinned to now. start is
// the open time of the earliest bar in the span.
func RangeFor(count int, intervalSeconds, now int64) (start, end int64) {
	if count < 1 {
		count = 1
	}
	end = now
	start = FloorTo(now, intervalSeconds) - int64(count-1)*intervalSeconds
	return start, end
}

// NowSeconds returns the current wall clock in Unix seconds.
func NowSeconds() int64 {
	return time.Now().Unix()
}
