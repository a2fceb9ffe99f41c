package mockex

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MementoRC/candles-feed/internal/adapter"
	"github.com/MementoRC/candles-feed/internal/exchanges/binance"
	"github.com/MementoRC/candles-feed/internal/exchanges/kucoin"
	"github.com/MementoRC/candles-feed/internal/exchanges/okx"
)

// The plugins must speak exactly the dialect the client adapters
// parse, so the strongest check is a round trip: render with the
// plugin, decode with the adapter, compare bars.

func TestBinancePluginRESTRoundTrip(t *testing.T) {
	plugin := NewBinancePlugin()
	gen := NewBarGenerator(GenConfig{AnchorPrice: 50_000, Seed: 9})
	bars := gen.History(1_700_000_000, 60, 5)

	q, err := plugin.ParseCandleQuery(url.Values{
		"symbol":    {"BTCUSDT"},
		"interval":  {"1m"},
		"startTime": {"1699999760000"},
		"limit":     {"5"},
	})
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", q.Symbol)
	assert.Equal(t, "1m", q.Interval)
	assert.Equal(t, int64(1_699_999_760), q.Start)
	assert.Equal(t, 5, q.Limit)

	body, err := json.Marshal(plugin.FormatRESTCandles(q, bars))
	require.NoError(t, err)

	parsed, err := binance.NewSpot(adapter.Endpoints{}).ParseREST(body)
	require.NoError(t, err)
	require.Len(t, parsed, 5)
	for i, b := range parsed {
		assert.Equal(t, bars[i].OpenTime, b.OpenTime)
		assert.InDelta(t, bars[i].Close, b.Close, 1e-9)
		assert.InDelta(t, bars[i].QuoteVolume, b.QuoteVolume, 1e-6)
		assert.Equal(t, bars[i].TradeCount, b.TradeCount)
	}
}

func TestBinancePluginWSRoundTrip(t *testing.T) {
	plugin := NewBinancePlugin()
	gen := NewBarGenerator(GenConfig{AnchorPrice: 50_000, Seed: 9})
	bar := gen.Next(1_700_000_000)

	frame, err := json.Marshal(plugin.FormatWSCandle(Subscription{Pair: "BTC-USDT", Interval: "1m"}, bar))
	require.NoError(t, err)

	parsed, ok := binance.NewSpot(adapter.Endpoints{}).ParseWS(frame)
	require.True(t, ok)
	require.Len(t, parsed, 1)
	assert.Equal(t, bar.OpenTime, parsed[0].OpenTime)
	assert.InDelta(t, bar.Close, parsed[0].Close, 1e-9)
	assert.Equal(t, bar.TradeCount, parsed[0].TradeCount)
}

func TestBinancePluginSubscription(t *testing.T) {
	plugin := NewBinancePlugin()

	op, subs, id, ok := plugin.ParseSubscription([]byte(
		`{"method":"SUBSCRIBE","params":["btcusdt@kline_1m"],"id":1}`))
	require.True(t, ok)
	assert.Equal(t, "subscribe", op)
	require.Len(t, subs, 1)
	assert.Equal(t, SubRequest{Symbol: "btcusdt", Interval: "1m"}, subs[0])

	ack, err := json.Marshal(plugin.AckFrame(op, subs, id))
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":null,"id":1}`, string(ack))

	// The adapter's stream name and the plugin's routing key agree.
	_, stream := binance.NewSpot(adapter.Endpoints{}).WSSubscribePayload(adapter.MustPair("BTC-USDT"), "1m")
	assert.Equal(t, stream, plugin.SubscriptionKey(Subscription{Pair: "BTC-USDT", Interval: "1m"}))

	_, _, _, ok = plugin.ParseSubscription([]byte(`{"e":"kline"}`))
	assert.False(t, ok)
}

func TestOKXPluginRESTRoundTrip(t *testing.T) {
	plugin := NewOKXPlugin()
	gen := NewBarGenerator(GenConfig{AnchorPrice: 2_000, Seed: 4})
	bars := gen.History(1_700_000_000, 60, 4)

	q, err := plugin.ParseCandleQuery(url.Values{
		"instId": {"ETH-USDT"},
		"bar":    {"1m"},
		"before": {"1699999819999"}, // start 1699999820
		"after":  {"1700000000001"}, // end   1700000000
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1_699_999_820), q.Start)
	assert.Equal(t, int64(1_700_000_000), q.End)

	body, err := json.Marshal(plugin.FormatRESTCandles(q, bars))
	require.NoError(t, err)

	parsed, err := okx.NewSpot(adapter.Endpoints{}).ParseREST(body)
	require.NoError(t, err)
	require.Len(t, parsed, 4)
	// The plugin emits newest first; the adapter returns ascending.
	for i, b := range parsed {
		assert.Equal(t, bars[i].OpenTime, b.OpenTime)
		assert.InDelta(t, bars[i].Close, b.Close, 1e-9)
	}
}

func TestOKXPluginSubscriptionAndControl(t *testing.T) {
	plugin := NewOKXPlugin()

	op, subs, _, ok := plugin.ParseSubscription([]byte(
		`{"op":"subscribe","args":[{"channel":"candle1H","instId":"ETH-USDT"}]}`))
	require.True(t, ok)
	assert.Equal(t, "subscribe", op)
	require.Len(t, subs, 1)
	assert.Equal(t, SubRequest{Symbol: "ETH-USDT", Interval: "1h"}, subs[0])

	_, key := okx.NewSpot(adapter.Endpoints{}).WSSubscribePayload(adapter.MustPair("ETH-USDT"), "1h")
	assert.Equal(t, key, plugin.SubscriptionKey(Subscription{Pair: "ETH-USDT", Interval: "1h"}))

	reply, handled := plugin.ControlReply([]byte("ping"))
	require.True(t, handled)
	assert.Equal(t, TextFrame("pong"), reply)

	_, handled = plugin.ControlReply([]byte(`{"op":"subscribe"}`))
	assert.False(t, handled)
}

func TestOKXPluginWSRoundTrip(t *testing.T) {
	plugin := NewOKXPlugin()
	gen := NewBarGenerator(GenConfig{AnchorPrice: 2_000, Seed: 4})
	bar := gen.Next(1_700_000_000)

	frame, err := json.Marshal(plugin.FormatWSCandle(Subscription{Pair: "ETH-USDT", Interval: "1m"}, bar))
	require.NoError(t, err)

	parsed, ok := okx.NewSpot(adapter.Endpoints{}).ParseWS(frame)
	require.True(t, ok)
	require.Len(t, parsed, 1)
	assert.Equal(t, bar.OpenTime, parsed[0].OpenTime)
	assert.InDelta(t, bar.Close, parsed[0].Close, 1e-9)
}

func TestKuCoinPluginRESTRoundTrip(t *testing.T) {
	plugin := NewKuCoinPlugin()
	gen := NewBarGenerator(GenConfig{AnchorPrice: 50_000, Seed: 6})
	bars := gen.History(1_700_000_000, 60, 4)

	q, err := plugin.ParseCandleQuery(url.Values{
		"symbol":  {"BTC-USDT"},
		"type":    {"1min"},
		"startAt": {"1699999820"},
		"endAt":   {"1700000000"},
	})
	require.NoError(t, err)
	assert.Equal(t, "1m", q.Interval)
	assert.Equal(t, int64(1_699_999_820), q.Start)
	assert.Equal(t, int64(1_700_000_000), q.End)

	body, err := json.Marshal(plugin.FormatRESTCandles(q, bars))
	require.NoError(t, err)

	parsed, err := kucoin.New(adapter.Endpoints{}).ParseREST(body)
	require.NoError(t, err)
	require.Len(t, parsed, 4)
	for i, b := range parsed {
		assert.Equal(t, bars[i].OpenTime, b.OpenTime)
		assert.InDelta(t, bars[i].Close, b.Close, 1e-9)
		assert.InDelta(t, bars[i].QuoteVolume, b.QuoteVolume, 1e-6)
	}
}

func TestKuCoinPluginWSRoundTrip(t *testing.T) {
	plugin := NewKuCoinPlugin()
	venue := kucoin.New(adapter.Endpoints{})
	gen := NewBarGenerator(GenConfig{AnchorPrice: 50_000, Seed: 6})
	bar := gen.Next(1_700_000_000)

	sub := Subscription{Pair: "BTC-USDT", Interval: "1m"}
	frame, err := json.Marshal(plugin.FormatWSCandle(sub, bar))
	require.NoError(t, err)

	parsed, ok := venue.ParseWS(frame)
	require.True(t, ok)
	require.Len(t, parsed, 1)
	assert.Equal(t, bar.OpenTime, parsed[0].OpenTime)
	assert.InDelta(t, bar.Close, parsed[0].Close, 1e-9)

	_, key := venue.WSSubscribePayload(adapter.MustPair("BTC-USDT"), "1m")
	assert.Equal(t, key, plugin.SubscriptionKey(sub))

	// The adapter's keep-alive payload earns an id-echoing pong, which
	// the adapter then ignores.
	reply, handled := plugin.ControlReply([]byte(venue.Settings().KeepAlive.Payload))
	require.True(t, handled)
	_, ok = venue.ParseWS(mustJSON(t, reply))
	assert.False(t, ok)
}

func TestKuCoinPluginSubscription(t *testing.T) {
	plugin := NewKuCoinPlugin()

	op, subs, id, ok := plugin.ParseSubscription([]byte(
		`{"id":"req-1","type":"subscribe","topic":"/market/candles:BTC-USDT_1min","response":true}`))
	require.True(t, ok)
	assert.Equal(t, "subscribe", op)
	require.Len(t, subs, 1)
	assert.Equal(t, SubRequest{Symbol: "BTC-USDT", Interval: "1m"}, subs[0])

	ack, err := json.Marshal(plugin.AckFrame(op, subs, id))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"req-1","type":"ack"}`, string(ack))

	_, _, _, ok = plugin.ParseSubscription([]byte(`{"type":"welcome"}`))
	assert.False(t, ok)
}

func TestNativePluginAdapterRoundTrip(t *testing.T) {
	plugin := NewNativePlugin()
	native := NewNativeAdapter(adapter.Endpoints{})
	gen := NewBarGenerator(GenConfig{AnchorPrice: 100, Seed: 2})
	bars := gen.History(1_700_000_000, 1, 3)

	q := CandleQuery{Symbol: "BTC-USDT", Interval: "1s"}
	body, err := json.Marshal(plugin.FormatRESTCandles(q, bars))
	require.NoError(t, err)

	parsed, err := native.ParseREST(body)
	require.NoError(t, err)
	require.Len(t, parsed, 3)
	assert.Equal(t, bars, parsed)

	frame, err := json.Marshal(plugin.FormatWSCandle(Subscription{Pair: "BTC-USDT", Interval: "1s"}, bars[2]))
	require.NoError(t, err)
	ws, ok := native.ParseWS(frame)
	require.True(t, ok)
	require.Len(t, ws, 1)
	assert.Equal(t, bars[2], ws[0])

	// Keep-alive round trip: the adapter's payload is a control frame.
	reply, handled := plugin.ControlReply([]byte(native.Settings().KeepAlive.Payload))
	require.True(t, handled)
	_, ok = native.ParseWS(mustJSON(t, reply))
	assert.False(t, ok)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
