package adapter

import (
	"fmt"
	"testing"

	"github.com/MementoRC/candles-feed/internal/candles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampUnitRoundTrip(t *testing.T) {
	// Samples span the Unix-seconds magnitude band the detection
	// heuristic is defined over.
	units := []TimestampUnit{UnitSeconds, UnitMilliseconds, UnitMicroseconds, UnitISO8601}
	samples := []int64{1_000_000_000, 1_700_000_060, 9_999_999_999}

	for _, u := range units {
		for _, ts := range samples {
			t.Run(fmt.Sprintf("%s/%d", u, ts), func(t *testing.T) {
				wire := u.FromSeconds(ts)
				back, err := candles.EnsureSeconds(wire)
				require.NoError(t, err)
				assert.Equal(t, ts, back)
			})
		}
	}
}

func TestTimestampUnitQueryValue(t *testing.T) {
	assert.Equal(t, "1700000060", UnitSeconds.QueryValue(1700000060))
	assert.Equal(t, "1700000060000", UnitMilliseconds.QueryValue(1700000060))
	assert.Equal(t, "1700000060000000", UnitMicroseconds.QueryValue(1700000060))
	assert.Equal(t, "2023-11-14T22:14:20Z", UnitISO8601.QueryValue(1700000060))
}

func TestEnsureSecondsReExport(t *testing.T) {
	got, err := EnsureSeconds("1700000060000")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000060), got)
}
