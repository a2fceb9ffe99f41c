package candles

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureSecondsMagnitudes(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want int64
	}{
		{"seconds int", int64(1700000000), 1700000000},
		{"seconds low edge", int64(1_000_000_000), 1_000_000_000},
		{"seconds high edge", int64(9_999_999_999), 9_999_999_999},
		{"milliseconds", int64(1700000000000), 1700000000},
		{"microseconds", int64(1700000000000000), 1700000000},
		{"nanoseconds", int64(1700000000000000000), 1700000000},
		{"seconds float", 1700000000.9, 1700000000},
		{"milliseconds float", 1700000000123.0, 1700000000},
		{"plain int", int(1700000000), 1700000000},
		{"string seconds", "1700000000", 1700000000},
		{"string milliseconds", "1700000000000", 1700000000},
		{"string decimal seconds", "1700000000.5", 1700000000},
		{"json number", json.Number("1700000000000"), 1700000000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := EnsureSeconds(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEnsureSecondsCalendarStrings(t *testing.T) {
	got, err := EnsureSeconds("2023-11-14T22:13:20Z")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), got)

	// No offset means UTC.
	got, err = EnsureSeconds("2023-11-14T22:13:20")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), got)

	got, err = EnsureSeconds("2023-11-14 22:13:20")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), got)

	got, err = EnsureSeconds("2023-11-14T23:13:20+01:00")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), got)
}

func TestEnsureSecondsTime(t *testing.T) {
	at := time.Unix(1700000000, 500_000_000)
	got, err := EnsureSeconds(at)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), got)
}

func TestEnsureSecondsRejectsJunk(t *testing.T) {
	_, err := EnsureSeconds("not a time")
	assert.Error(t, err)

	_, err = EnsureSeconds(nil)
	assert.Error(t, err)

	_, err = EnsureSeconds(struct{}{})
	assert.Error(t, err)

	_, err = EnsureSeconds("")
	assert.Error(t, err)
}

func TestFloorTo(t *testing.T) {
	assert.Equal(t, int64(1700000040), FloorTo(1700000099, 60))
	assert.Equal(t, int64(1700000040), FloorTo(1700000040, 60))
	assert.Equal(t, int64(1699999200), FloorTo(1700000099, 3600))

	for _, interval := range []int64{60, 300, 3600, 86400} {
		for _, ts := range []int64{1700000000, 1700000001, 1700003599, 1} {
			got := FloorTo(ts, interval)
			assert.Zero(t, got%interval)
			assert.LessOrEqual(t, got, ts)
			assert.Greater(t, got, ts-interval)
		}
	}
}

func TestRangeFor(t *testing.T) {
	now := int64(1700000099)
	start, end := RangeFor(10, 60, now)
	assert.Equal(t, now, end)
	assert.Equal(t, FloorTo(now, 60)-9*60, start)
	assert.Zero(t, start%60)

	// Degenerate count still yields one boundary.
	start, end = RangeFor(0, 60, now)
	assert.Equal(t, FloorTo(now, 60), start)
	assert.Equal(t, now, end)
}
