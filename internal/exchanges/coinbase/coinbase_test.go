package coinbase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MementoRC/candles-feed/internal/adapter"
)

var btcUSD = adapter.MustPair("BTC-USD")

func TestFormatPair(t *testing.T) {
	a := New(adapter.Endpoints{})
	assert.Equal(t, "BTC-USD", a.FormatPair(btcUSD))
}

func TestRESTParams(t *testing.T) {
	a := New(adapter.Endpoints{})
	params := a.RESTParams(btcUSD, "1h", adapter.FetchOpts{
		StartSeconds: 1700000000,
		EndSeconds:   1700003600,
		Limit:        100,
	})
	assert.Equal(t, "BTC-USD", params.Get("product_id"))
	assert.Equal(t, "ONE_HOUR", params.Get("granularity"))
	assert.Equal(t, "2023-11-14T22:13:20Z", params.Get("start"))
	assert.Equal(t, "2023-11-14T23:13:20Z", params.Get("end"))
	assert.Equal(t, "100", params.Get("limit"))
}

func TestParseREST(t *testing.T) {
	payload := []byte(`{"candles":[
	  {"start":"1700000100","low":"49990.3","high":"50080.0","open":"50020.4","close":"50061.0","volume":"8.2"},
	  {"start":"1700000040","low":"49990.3","high":"50050.2","open":"50000.1","close":"50020.4","volume":"12.5"}
	]}`)

	a := New(adapter.Endpoints{})
	bars, err := a.ParseREST(payload)
	require.NoError(t, err)
	require.Len(t, bars, 2)

	// Newest-first input comes back ascending.
	assert.Equal(t, int64(1700000040), bars[0].OpenTime)
	assert.Equal(t, int64(1700000100), bars[1].OpenTime)
	assert.Equal(t, 50000.1, bars[0].Open)
	assert.Equal(t, 50050.2, bars[0].High)
	assert.Equal(t, 49990.3, bars[0].Low)
	assert.Equal(t, 50020.4, bars[0].Close)
	assert.Equal(t, 12.5, bars[0].Volume)
	assert.Zero(t, bars[0].TradeCount)
}

func TestParseRESTISOTimestamps(t *testing.T) {
	payload := []byte(`{"candles":[
	  {"start":"2023-11-14T22:14:00Z","low":"1","high":"2","open":"1.5","close":"1.8","volume":"3"}
	]}`)
	a := New(adapter.Endpoints{})
	bars, err := a.ParseREST(payload)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, int64(1700000040), bars[0].OpenTime)
}

func TestParseRESTEmptyAndShape(t *testing.T) {
	a := New(adapter.Endpoints{})

	bars, err := a.ParseREST(nil)
	require.NoError(t, err)
	assert.Empty(t, bars)

	bars, err = a.ParseREST([]byte(`{"candles":[]}`))
	require.NoError(t, err)
	assert.Empty(t, bars)

	_, err = a.ParseREST([]byte(`[1,2,3]`))
	require.Error(t, err)
	assert.True(t, adapter.IsKind(err, adapter.KindShape))
}

func TestWSSubscribePayload(t *testing.T) {
	a := New(adapter.Endpoints{})
	payload, key := a.WSSubscribePayload(btcUSD, "5m")
	assert.Equal(t, "candles:BTC-USD", key)

	m, ok := payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "subscribe", m["type"])
	assert.Equal(t, "candles", m["channel"])
	assert.Equal(t, []string{"BTC-USD"}, m["product_ids"])
}

func TestParseWS(t *testing.T) {
	frame := []byte(`{
	  "channel":"candles","timestamp":"2023-11-14T22:14:03Z","sequence_num":7,
	  "events":[{"type":"update","candles":[
	    {"start":"1700000100","low":"49990.3","high":"50080.0","open":"50020.4","close":"50061.0","volume":"8.2","product_id":"BTC-USD"}
	  ]}]
	}`)

	a := New(adapter.Endpoints{})
	bars, ok := a.ParseWS(frame)
	require.True(t, ok)
	require.Len(t, bars, 1)
	assert.Equal(t, int64(1700000100), bars[0].OpenTime)
	assert.Equal(t, 50061.0, bars[0].Close)
}

func TestParseWSIgnoresOtherChannels(t *testing.T) {
	a := New(adapter.Endpoints{})
	for _, frame := range []string{
		`{"channel":"subscriptions","events":[{"subscriptions":{"candles":["BTC-USD"]}}]}`,
		`{"channel":"heartbeats","events":[]}`,
		`not json`,
	} {
		bars, ok := a.ParseWS([]byte(frame))
		assert.False(t, ok, "frame %s", frame)
		assert.Empty(t, bars)
	}
}

func TestSettings(t *testing.T) {
	a := New(adapter.Endpoints{})
	s := a.Settings()
	assert.Equal(t, adapter.UnitISO8601, s.TimestampUnit)
	assert.Equal(t, adapter.KeepAliveNone, s.KeepAlive.Kind)
	assert.Equal(t, 350, s.MaxBarsPerRequest)
	assert.False(t, s.SyncFetch)
}

func TestRegistered(t *testing.T) {
	a, err := adapter.New(Name, adapter.Endpoints{})
	require.NoError(t, err)
	assert.Equal(t, Name, a.Exchange())
}
