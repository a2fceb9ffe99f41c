package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, vec.WithLabelValues(labels...).Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, vec.WithLabelValues(labels...).Write(&m))
	return m.GetGauge().GetValue()
}

func TestFeedInstruments(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := NewFeed(reg)

	f.BarsIngested("binance", "BTC-USDT", "1m", "rest", 5)
	f.BarsIngested("binance", "BTC-USDT", "1m", "ws", 2)
	f.BarsIngested("binance", "BTC-USDT", "1m", "rest", 0)
	f.ShapeError("binance")
	f.RESTRetry("binance")
	f.WSReconnect("binance")
	f.Window("binance", "BTC-USDT", "1m", 150, 12.5)

	assert.Equal(t, 5.0, counterValue(t, f.barsIngested, "binance", "BTC-USDT", "1m", "rest"))
	assert.Equal(t, 2.0, counterValue(t, f.barsIngested, "binance", "BTC-USDT", "1m", "ws"))
	assert.Equal(t, 1.0, counterValue(t, f.shapeErrors, "binance"))
	assert.Equal(t, 1.0, counterValue(t, f.restRetries, "binance"))
	assert.Equal(t, 1.0, counterValue(t, f.wsReconnects, "binance"))
	assert.Equal(t, 150.0, gaugeValue(t, f.windowLength, "binance", "BTC-USDT", "1m"))
	assert.Equal(t, 12.5, gaugeValue(t, f.stalenessSecs, "binance", "BTC-USDT", "1m"))
}

func TestNilFeedIsSafe(t *testing.T) {
	var f *Feed
	assert.NotPanics(t, func() {
		f.BarsIngested("x", "y", "1m", "rest", 3)
		f.ShapeError("x")
		f.RESTRetry("x")
		f.WSReconnect("x")
		f.Window("x", "y", "1m", 1, 0)
	})
}

func TestGatherNames(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := NewFeed(reg)
	f.Window("kraken", "BTC-USD", "1h", 3, 0)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, fam := range families {
		names[fam.GetName()] = true
	}
	assert.True(t, names["candles_feed_window_length"])
	assert.True(t, names["candles_feed_staleness_seconds"])
	_ = f
}
