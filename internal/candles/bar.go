// Package candles defines the canonical OHLCV bar, the bounded
// time-ordered store that maintains a sliding window of bars for one
// trading pair and interval, and the fixed-schema tabular projection
// handed to consumers.
package candles

import (
	"fmt"
)

// Bar is one OHLCV candle for a single interval. OpenTime is the start
// of the interval in Unix seconds and is always an exact multiple of
// the interval duration. Venues that omit the trailing fields get zero
// values; the store only enforces temporal invariants, so aberrant
// price ticks (low above open, etc.) pass through untouched.
type Bar struct {
	OpenTime      int64
	Open          float64
	High          float64
	Low           float64
	Close         float64
	Volume        float64
	QuoteVolume   float64
	TradeCount    uint64
	TakerBuyBase  float64
	TakerBuyQuote float64
}

// Row projects the bar into its ten-field array form, matching the
// tabular column order. TradeCount is widened to float64 so the row is
// uniform past the timestamp.
func (b Bar) Row() []any {
	return []any{
		b.OpenTime,
		b.Open,
		b.High,
		b.Low,
		b.Close,
		b.Volume,
		b.QuoteVolume,
		float64(b.TradeCount),
		b.TakerBuyBase,
		b.TakerBuyQuote,
	}
}

// BarFromRow builds a Bar from an array-shaped record: open time, then
// open, high, low, close, volume, and optionally quote volume, trade
// count, taker buy base and taker buy quote. Missing or nil trailing
// fields default to zero. The open time passes through EnsureSeconds,
// so second, millisecond, microsecond and string encodings are all
// accepted; the remaining fields accept any numeric encoding ToFloat
// understands.
func BarFromRow(row []any) (Bar, error) {
	if len(row) < 6 {
		return Bar{}, fmt.Errorf("bar row needs at least 6 fields, got %d", len(row))
	}
	ts, err := EnsureSeconds(row[0])
	if err != nil {
		return Bar{}, fmt.Errorf("bar open time: %w", err)
	}
	var vals [9]float64
	for i := 1; i < len(row) && i <= 9; i++ {
		if row[i] == nil {
			continue
		}
		v, err := ToFloat(row[i])
		if err != nil {
			return Bar{}, fmt.Errorf("bar field %d: %w", i, err)
		}
		vals[i-1] = v
	}
	return Bar{
		OpenTime:      ts,
		Open:          vals[0],
		High:          vals[1],
		Low:           vals[2],
		Close:         vals[3],
		Volume:        vals[4],
		QuoteVolume:   vals[5],
		TradeCount:    uint64(vals[6]),
		TakerBuyBase:  vals[7],
		TakerBuyQuote: vals[8],
	}, nil
}
