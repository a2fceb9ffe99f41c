package mockex

import (
	"math"
	"math/rand"

	"github.com/MementoRC/candles-feed/internal/candles"
)

// GenConfig tunes one pair's bar generator. Zero values take the
// defaults below.
type GenConfig struct {
	// AnchorPrice is the price the series is tethered to.
	AnchorPrice float64

	// Volatility is the per-bar move as a fraction of price.
	Volatility float64

	// MaxDeviation bounds how far the walk may drift from the
	// anchor, as a fraction; beyond it the next move pulls back.
	MaxDeviation float64

	// Trend biases each move, as a fraction per bar. Positive
	// trends up.
	Trend float64

	Seed int64
}

func (c GenConfig) withDefaults() GenConfig {
	if c.AnchorPrice <= 0 {
		c.AnchorPrice = 100
	}
	if c.Volatility <= 0 {
		c.Volatility = 0.002
	}
	if c.MaxDeviation <= 0 {
		c.MaxDeviation = 0.25
	}
	if c.Seed == 0 {
		c.Seed = 1
	}
	return c
}

// BarGenerator produces a plausible OHLCV sequence: a bounded random
// walk around an anchor price. Deterministic for a given seed, so
// scenario tests can assert against regenerated series.
type BarGenerator struct {
	cfg       GenConfig
	rng       *rand.Rand
	lastClose float64
}

// NewBarGenerator builds a generator starting at the anchor price.
func NewBarGenerator(cfg GenConfig) *BarGenerator {
	cfg = cfg.withDefaults()
	return &BarGenerator{
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		lastClose: cfg.AnchorPrice,
	}
}

// History produces n ascending aligned bars whose last open time is
// lastOpen.
func (g *BarGenerator) History(lastOpen, intervalSecs int64, n int) []candles.Bar {
	if n <= 0 {
		return nil
	}
	bars := make([]candles.Bar, 0, n)
	first := lastOpen - int64(n-1)*intervalSecs
	for open := first; open <= lastOpen; open += intervalSecs {
		bars = append(bars, g.Next(open))
	}
	return bars
}

// Next produces the bar opening at openTime, continuing from the
// previous close.
func (g *BarGenerator) Next(openTime int64) candles.Bar {
	open := g.lastClose
	closePx := g.step(open)
	high := math.Max(open, closePx) * (1 + g.rng.Float64()*g.cfg.Volatility)
	low := math.Min(open, closePx) * (1 - g.rng.Float64()*g.cfg.Volatility)

	volume := (0.5 + g.rng.Float64()) * 10
	trades := uint64(g.rng.Intn(900) + 100)
	takerShare := 0.3 + g.rng.Float64()*0.4

	g.lastClose = closePx
	mid := (open + closePx) / 2
	return candles.Bar{
		OpenTime:      openTime,
		Open:          open,
		High:          high,
		Low:           low,
		Close:         closePx,
		Volume:        volume,
		QuoteVolume:   volume * mid,
		TradeCount:    trades,
		TakerBuyBase:  volume * takerShare,
		TakerBuyQuote: volume * takerShare * mid,
	}
}

// Mutate drifts an in-progress bar the way a live venue does between
// boundary crossings: the close moves, high/low stretch to cover it,
// volume and trade count accumulate.
func (g *BarGenerator) Mutate(b *candles.Bar) {
	b.Close = g.step(b.Close)
	if b.Close > b.High {
		b.High = b.Close
	}
	if b.Close < b.Low {
		b.Low = b.Close
	}
	add := g.rng.Float64()
	b.Volume += add
	b.QuoteVolume += add * b.Close
	b.TradeCount += uint64(g.rng.Intn(20) + 1)
	g.lastClose = b.Close
}

// InjectPriceEvent shifts the walk by a fraction of the current
// price, for scenario tests that need a spike or crash.
func (g *BarGenerator) InjectPriceEvent(fraction float64) {
	g.lastClose *= 1 + fraction
}

// step takes one bounded move from a price.
func (g *BarGenerator) step(from float64) float64 {
	move := (g.rng.Float64()*2 - 1) * g.cfg.Volatility
	move += g.cfg.Trend

	// Pull back toward the anchor once the walk strays too far.
	deviation := (from - g.cfg.AnchorPrice) / g.cfg.AnchorPrice
	if deviation > g.cfg.MaxDeviation && move > 0 {
		move = -move
	} else if deviation < -g.cfg.MaxDeviation && move < 0 {
		move = -move
	}
	return from * (1 + move)
}
