package candles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBarRowRoundTrip(t *testing.T) {
	b := Bar{
		OpenTime:      1700000100,
		Open:          50000.5,
		High:          50100.25,
		Low:           49900.75,
		Close:         50050.0,
		Volume:        12.34,
		QuoteVolume:   617000.12,
		TradeCount:    842,
		TakerBuyBase:  6.1,
		TakerBuyQuote: 305000.9,
	}

	row := b.Row()
	require.Len(t, row, 10)

	back, err := BarFromRow(row)
	require.NoError(t, err)
	assert.Equal(t, b, back)
}

func TestBarFromRowWireShapes(t *testing.T) {
	t.Run("string prices and ms timestamp", func(t *testing.T) {
		row := []any{
			float64(1700000100000), "50000.5", "50100.25", "49900.75", "50050.0", "12.34",
			"617000.12", float64(842), "6.1", "305000.9",
		}
		b, err := BarFromRow(row)
		require.NoError(t, err)
		assert.Equal(t, int64(1700000100), b.OpenTime)
		assert.Equal(t, 50000.5, b.Open)
		assert.Equal(t, uint64(842), b.TradeCount)
		assert.Equal(t, 305000.9, b.TakerBuyQuote)
	})

	t.Run("optional fields default to zero", func(t *testing.T) {
		row := []any{int64(1700000100), 1.0, 2.0, 0.5, 1.5, 100.0}
		b, err := BarFromRow(row)
		require.NoError(t, err)
		assert.Equal(t, 1.5, b.Close)
		assert.Zero(t, b.QuoteVolume)
		assert.Zero(t, b.TradeCount)
		assert.Zero(t, b.TakerBuyQuote)
	})

	t.Run("nil fields default to zero", func(t *testing.T) {
		row := []any{int64(1700000100), 1.0, 2.0, 0.5, 1.5, 100.0, nil, nil, nil, nil}
		b, err := BarFromRow(row)
		require.NoError(t, err)
		assert.Zero(t, b.QuoteVolume)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := BarFromRow([]any{int64(1700000100), 1.0, 2.0})
		assert.Error(t, err)
	})

	t.Run("bad price", func(t *testing.T) {
		_, err := BarFromRow([]any{int64(1700000100), "abc", 2.0, 0.5, 1.5, 100.0})
		assert.Error(t, err)
	})

	t.Run("bad timestamp", func(t *testing.T) {
		_, err := BarFromRow([]any{"garbage", 1.0, 2.0, 0.5, 1.5, 100.0})
		assert.Error(t, err)
	})
}

func TestToFloat(t *testing.T) {
	for _, tc := range []struct {
		in   any
		want float64
	}{
		{float64(1.5), 1.5},
		{"1.5", 1.5},
		{" 42 ", 42},
		{int(7), 7},
		{int64(7), 7},
		{nil, 0},
	} {
		got, err := ToFloat(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := ToFloat("abc")
	assert.Error(t, err)
	_, err = ToFloat([]int{1})
	assert.Error(t, err)
}

func TestToCount(t *testing.T) {
	for _, tc := range []struct {
		in   any
		want uint64
	}{
		{uint64(5), 5},
		{int(5), 5},
		{int64(5), 5},
		{float64(5.0), 5},
		{float64(4.6), 5}, // rounds, never truncates
		{"5", 5},
		{"5.0", 5},
		{nil, 0},
	} {
		got, err := ToCount(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "input %v", tc.in)
	}

	_, err := ToCount(-1)
	assert.Error(t, err)
	_, err = ToCount("many")
	assert.Error(t, err)
}
