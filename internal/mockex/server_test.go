package mockex

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MementoRC/candles-feed/internal/adapter"
	"github.com/MementoRC/candles-feed/internal/exchanges/binance"
)

func startServer(t *testing.T, plugins ...Plugin) *Server {
	t.Helper()
	srv, err := NewServer(zerolog.Nop(), plugins...)
	require.NoError(t, err)
	require.NoError(t, srv.AddTradingPair("BTC-USDT", 50_000, "1s", "1m"))
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv
}

func TestServerRequiresPlugin(t *testing.T) {
	_, err := NewServer(zerolog.Nop())
	require.Error(t, err)
}

func TestServerCandlesThroughAdapter(t *testing.T) {
	srv := startServer(t, NewBinancePlugin())

	eps, err := srv.Endpoints("binance")
	require.NoError(t, err)
	venue := binance.NewSpot(eps)

	params := venue.RESTParams(adapter.MustPair("BTC-USDT"), "1m", adapter.FetchOpts{Limit: 50})
	resp, err := http.Get(venue.RESTURL() + "?" + params.Encode())
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	bars, err := venue.ParseREST(body)
	require.NoError(t, err)
	require.Len(t, bars, 50)
	for i := 1; i < len(bars); i++ {
		assert.Equal(t, bars[i-1].OpenTime+60, bars[i].OpenTime)
	}
}

func TestServerUnknownSymbol(t *testing.T) {
	srv := startServer(t, NewBinancePlugin())

	resp, err := http.Get("http://" + srv.Addr() + "/api/v3/klines?symbol=DOGEUSDT&interval=1m")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServerEndpointsUnknownExchange(t *testing.T) {
	srv := startServer(t, NewBinancePlugin())

	_, err := srv.Endpoints("kraken")
	require.Error(t, err)
	assert.True(t, adapter.IsKind(err, adapter.KindMisuse))
}

func TestServerErrorRate(t *testing.T) {
	srv := startServer(t, NewNativePlugin())
	srv.SetNetworkConditions(NetworkConditions{ErrorRate: 1})

	resp, err := http.Get("http://" + srv.Addr() + "/api/candles?symbol=BTC-USDT&interval=1m")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	srv.ResetNetworkConditions()
	resp, err = http.Get("http://" + srv.Addr() + "/api/candles?symbol=BTC-USDT&interval=1m")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServerPacketLoss(t *testing.T) {
	srv := startServer(t, NewNativePlugin())
	srv.SetNetworkConditions(NetworkConditions{PacketLoss: 1})

	resp, err := http.Get("http://" + srv.Addr() + "/api/candles?symbol=BTC-USDT&interval=1m")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusRequestTimeout, resp.StatusCode)
}

// throttledPlugin shrinks the weight budget so the window trips fast.
type throttledPlugin struct{ *NativePlugin }

func (throttledPlugin) Overrides() Overrides {
	return Overrides{RateLimitPerMinute: 2, CandleWeight: 1}
}

func TestServerRateLimit(t *testing.T) {
	srv := startServer(t, throttledPlugin{NewNativePlugin()})
	url := "http://" + srv.Addr() + "/api/candles?symbol=BTC-USDT&interval=1m&limit=1"

	for i := 0; i < 2; i++ {
		resp, err := http.Get(url)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))

	counts := srv.RequestCounts()
	total := 0
	for _, n := range counts {
		total += n
	}
	assert.Equal(t, 3, total)
}

func TestRateLimiterWindow(t *testing.T) {
	rl := newRateLimiter(10)
	assert.True(t, rl.allow("a", 6))
	assert.True(t, rl.allow("a", 4))
	assert.False(t, rl.allow("a", 1))
	// Budgets are per IP.
	assert.True(t, rl.allow("b", 10))

	unlimited := newRateLimiter(0)
	assert.True(t, unlimited.allow("a", 1_000_000))
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestServerWSPingPong(t *testing.T) {
	srv := startServer(t, NewNativePlugin())
	conn := dialWS(t, "ws://"+srv.Addr()+"/stream")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"op":"ping"}`)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"op":"pong"}`, string(frame))
}

func TestServerWSSubscribeStream(t *testing.T) {
	srv := startServer(t, NewNativePlugin())
	conn := dialWS(t, "ws://"+srv.Addr()+"/stream")

	require.NoError(t, conn.WriteJSON(map[string]any{
		"op": "subscribe", "symbol": "BTC-USDT", "interval": "1s",
	}))

	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	var ack struct {
		Op string `json:"op"`
	}
	require.NoError(t, json.Unmarshal(frame, &ack))
	assert.Equal(t, "subscribed", ack.Op)

	// The prime frame arrives immediately, then the generator keeps
	// pushing on its one-second tick.
	for i := 0; i < 2; i++ {
		_, frame, err = conn.ReadMessage()
		require.NoError(t, err)
		var msg struct {
			Type     string `json:"type"`
			Interval string `json:"interval"`
		}
		require.NoError(t, json.Unmarshal(frame, &msg))
		assert.Equal(t, "candle", msg.Type)
		assert.Equal(t, "1s", msg.Interval)
	}
}

func TestServerWSUnknownSubscriptionIgnored(t *testing.T) {
	srv := startServer(t, NewNativePlugin())
	conn := dialWS(t, "ws://"+srv.Addr()+"/stream")

	require.NoError(t, conn.WriteJSON(map[string]any{
		"op": "subscribe", "symbol": "DOGE-USDT", "interval": "1s",
	}))
	// The ack still comes; no candle ever follows.
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	var ack struct {
		Op string `json:"op"`
	}
	require.NoError(t, json.Unmarshal(frame, &ack))
	assert.Equal(t, "subscribed", ack.Op)

	_ = conn.SetReadDeadline(time.Now().Add(1500 * time.Millisecond))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestServerCloseWSConnections(t *testing.T) {
	srv := startServer(t, NewNativePlugin())
	conn := dialWS(t, "ws://"+srv.Addr()+"/stream")

	srv.CloseWSConnections()
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func TestServerOKXTextPing(t *testing.T) {
	srv := startServer(t, NewOKXPlugin())
	conn := dialWS(t, "ws://"+srv.Addr()+"/ws/v5/business")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "pong", string(frame))
}
