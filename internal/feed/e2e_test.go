package feed

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MementoRC/candles-feed/internal/adapter"
	"github.com/MementoRC/candles-feed/internal/candles"
	"github.com/MementoRC/candles-feed/internal/mockex"
	"github.com/MementoRC/candles-feed/internal/netclient"

	_ "github.com/MementoRC/candles-feed/internal/exchanges/kucoin"
)

// These tests run the full strategy state machine against the mock
// exchange server on real sockets. The native venue serves one-second
// bars, so boundary crossings and reconnects happen inside test time.

// newFastRetryClient keeps outage tests quick: one retry, short delay.
func newFastRetryClient() adapter.RESTClient {
	return netclient.New(netclient.Config{
		Name:       mockex.NativeName,
		RetryLimit: 1,
		RetryDelay: 20 * time.Millisecond,
	})
}

func startNativeMock(t *testing.T) (*mockex.Server, adapter.Endpoints) {
	t.Helper()
	srv, err := mockex.NewServer(zerolog.Nop(), mockex.NewNativePlugin())
	require.NoError(t, err)
	require.NoError(t, srv.AddTradingPair("BTC-USDT", 100, "1s"))
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)

	eps, err := srv.Endpoints(mockex.NativeName)
	require.NoError(t, err)
	return srv, eps
}

func nativeController(t *testing.T, eps adapter.Endpoints, mutate func(*Config)) *Controller {
	t.Helper()
	cfg := Config{
		Exchange:         mockex.NativeName,
		Endpoints:        eps,
		Pair:             adapter.MustPair("BTC-USDT"),
		Interval:         "1s",
		Capacity:         150,
		FetchLimit:       30,
		PollLag:          100 * time.Millisecond,
		SubscribeTimeout: 5 * time.Second,
		Backoff:          Backoff{Base: 50 * time.Millisecond, Cap: 200 * time.Millisecond},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(c.Stop)
	return c
}

func TestE2EPolling(t *testing.T) {
	_, eps := startNativeMock(t)
	c := nativeController(t, eps, nil)

	require.NoError(t, c.Start(KindPolling))
	assert.Equal(t, KindPolling, c.Running())

	// The seed fetch fills the window without waiting for a boundary.
	require.Eventually(t, func() bool { return c.Store().Len() >= 30 },
		3*time.Second, 20*time.Millisecond)
	require.True(t, c.GapFree())

	// Boundary polls keep the newest bar moving with the clock.
	newest, ok := c.Store().Newest()
	require.True(t, ok)
	require.Eventually(t, func() bool {
		n, ok := c.Store().Newest()
		return ok && n.OpenTime > newest.OpenTime
	}, 5*time.Second, 50*time.Millisecond)
	assert.True(t, c.GapFree())

	c.Stop()
	assert.Equal(t, Kind(""), c.Running())
}

func TestE2EStreaming(t *testing.T) {
	_, eps := startNativeMock(t)
	c := nativeController(t, eps, nil)

	require.NoError(t, c.Start(KindWebsocket))
	assert.Equal(t, KindWebsocket, c.Running())

	// Backfill seeds history while the stream delivers live bars.
	require.Eventually(t, func() bool { return c.Store().Len() >= 30 },
		5*time.Second, 20*time.Millisecond)
	require.True(t, c.GapFree())

	newest, ok := c.Store().Newest()
	require.True(t, ok)
	require.Eventually(t, func() bool {
		n, ok := c.Store().Newest()
		return ok && n.OpenTime > newest.OpenTime
	}, 5*time.Second, 50*time.Millisecond)
	assert.True(t, c.GapFree())
}

func TestE2EAutoPrefersStreaming(t *testing.T) {
	_, eps := startNativeMock(t)
	c := nativeController(t, eps, nil)

	require.NoError(t, c.Start(KindAuto))
	assert.Equal(t, KindWebsocket, c.Running())
}

func TestE2EReconnectAfterDrop(t *testing.T) {
	srv, eps := startNativeMock(t)
	c := nativeController(t, eps, nil)

	require.NoError(t, c.Start(KindWebsocket))
	require.Eventually(t, func() bool { return c.Store().Len() > 0 },
		5*time.Second, 20*time.Millisecond)

	srv.CloseWSConnections()

	// The strategy reconnects, resubscribes and backfills the gap; the
	// window keeps advancing without developing holes.
	newest, ok := c.Store().Newest()
	require.True(t, ok)
	require.Eventually(t, func() bool {
		n, ok := c.Store().Newest()
		return ok && n.OpenTime >= newest.OpenTime+2
	}, 10*time.Second, 50*time.Millisecond)
	assert.True(t, c.GapFree())
}

func TestE2EFetchHistoryRange(t *testing.T) {
	_, eps := startNativeMock(t)
	c := nativeController(t, eps, nil)

	end := candles.NowSeconds() - 2
	start := end - 59

	bars, err := c.FetchHistory(context.Background(), start, end, 0)
	require.NoError(t, err)
	require.NotEmpty(t, bars)
	for i, b := range bars {
		assert.GreaterOrEqual(t, b.OpenTime, start)
		assert.LessOrEqual(t, b.OpenTime, end)
		if i > 0 {
			assert.Greater(t, b.OpenTime, bars[i-1].OpenTime)
		}
	}
	assert.True(t, c.GapFree())
}

func TestE2EKuCoinTokenHandshake(t *testing.T) {
	srv, err := mockex.NewServer(zerolog.Nop(), mockex.NewKuCoinPlugin())
	require.NoError(t, err)
	require.NoError(t, srv.AddTradingPair("BTC-USDT", 50_000, "1m"))
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)

	eps, err := srv.Endpoints("kucoin")
	require.NoError(t, err)

	c, err := New(Config{
		Exchange:         "kucoin",
		Endpoints:        eps,
		Pair:             adapter.MustPair("BTC-USDT"),
		Interval:         "1m",
		Capacity:         100,
		FetchLimit:       30,
		SubscribeTimeout: 5 * time.Second,
		Backoff:          Backoff{Base: 50 * time.Millisecond, Cap: 200 * time.Millisecond},
	})
	require.NoError(t, err)
	t.Cleanup(c.Stop)

	// Streaming here only works if the bullet-public handshake ran:
	// the dial URL comes from the handshake response, token included.
	require.NoError(t, c.Start(KindWebsocket))
	require.Eventually(t, func() bool { return c.Store().Len() >= 30 },
		5*time.Second, 20*time.Millisecond)
	require.True(t, c.GapFree())

	// The developing bar keeps mutating over the stream.
	newest, ok := c.Store().Newest()
	require.True(t, ok)
	require.Eventually(t, func() bool {
		n, ok := c.Store().Newest()
		return ok && (n.Volume > newest.Volume || n.OpenTime > newest.OpenTime)
	}, 5*time.Second, 50*time.Millisecond)
}

func TestE2EMultiplePairsIsolate(t *testing.T) {
	srv, err := mockex.NewServer(zerolog.Nop(), mockex.NewNativePlugin())
	require.NoError(t, err)
	anchors := map[string]float64{"BTC-USDT": 50_000, "ETH-USDT": 3_000, "SOL-USDT": 100}
	for pair, price := range anchors {
		require.NoError(t, srv.AddTradingPair(pair, price, "1s"))
	}
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)

	eps, err := srv.Endpoints(mockex.NativeName)
	require.NoError(t, err)

	closes := make(map[string]float64, len(anchors))
	for pair, price := range anchors {
		c := nativeController(t, eps, func(cfg *Config) {
			cfg.Pair = adapter.MustPair(pair)
		})
		require.NoError(t, c.Start(KindPolling))
		require.Eventually(t, func() bool { return c.Store().Len() >= 30 },
			3*time.Second, 20*time.Millisecond)

		newest, ok := c.Store().Newest()
		require.True(t, ok)
		assert.InDelta(t, price, newest.Close, price*0.3, "pair %s drifted from its anchor", pair)
		closes[pair] = newest.Close
		c.Stop()
	}

	assert.NotEqual(t, closes["BTC-USDT"], closes["ETH-USDT"])
	assert.NotEqual(t, closes["ETH-USDT"], closes["SOL-USDT"])
	assert.NotEqual(t, closes["BTC-USDT"], closes["SOL-USDT"])
}

func TestE2EFetchHistorySurvivesFaults(t *testing.T) {
	srv, eps := startNativeMock(t)
	c := nativeController(t, eps, func(cfg *Config) {
		cfg.REST = newFastRetryClient()
	})

	srv.SetNetworkConditions(mockex.NetworkConditions{
		Latency:    50 * time.Millisecond,
		PacketLoss: 0.2,
		ErrorRate:  0.2,
	})

	end := candles.NowSeconds() - 2
	succeeded := 0
	for i := 0; i < 5; i++ {
		bars, err := c.FetchHistory(context.Background(), end-9, end, 0)
		if err == nil && len(bars) > 0 {
			succeeded++
		}
	}
	assert.Positive(t, succeeded)

	// Clean conditions restore deterministic success.
	srv.ResetNetworkConditions()
	bars, err := c.FetchHistory(context.Background(), end-9, end, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, bars)
}

func TestE2EIntervalSpacingPerStore(t *testing.T) {
	srv, err := mockex.NewServer(zerolog.Nop(), mockex.NewNativePlugin())
	require.NoError(t, err)
	require.NoError(t, srv.AddTradingPair("BTC-USDT", 50_000, "1m", "5m", "1h"))
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)

	eps, err := srv.Endpoints(mockex.NativeName)
	require.NoError(t, err)

	for interval, secs := range map[string]int64{"1m": 60, "5m": 300, "1h": 3600} {
		c := nativeController(t, eps, func(cfg *Config) {
			cfg.Interval = interval
		})
		require.NoError(t, c.Start(KindPolling))
		require.Eventually(t, func() bool { return c.Store().Len() >= 2 },
			3*time.Second, 20*time.Millisecond)
		c.Stop()

		require.True(t, c.GapFree())
		bars := c.Bars()
		for i := 1; i < len(bars); i++ {
			assert.Equal(t, secs, bars[i].OpenTime-bars[i-1].OpenTime, "interval %s", interval)
		}
	}
}

func TestE2EPollingRecoversFromOutage(t *testing.T) {
	srv, eps := startNativeMock(t)
	c := nativeController(t, eps, func(cfg *Config) {
		cfg.REST = newFastRetryClient()
	})

	// Total outage: every handler answers 502. The poller logs and
	// keeps trying; it must not give up or poison the window.
	srv.SetNetworkConditions(mockex.NetworkConditions{ErrorRate: 1})
	require.NoError(t, c.Start(KindPolling))
	time.Sleep(1500 * time.Millisecond)
	assert.Zero(t, c.Store().Len())

	srv.ResetNetworkConditions()
	require.Eventually(t, func() bool { return c.Store().Len() >= 30 },
		5*time.Second, 50*time.Millisecond)
	assert.True(t, c.GapFree())
}
