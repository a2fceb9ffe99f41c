package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	appName = "candles-feed"
	version = "v1.0.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Unified real-time candlestick feeds across crypto exchanges",
		Version: version,
		Long: `candles-feed maintains bounded in-memory candle windows per
(exchange, pair, interval), fed by boundary-aligned REST polling or
WebSocket streaming with automatic backfill and reconnect.`,
		SilenceUsage: true,
	}

	feedCmd := &cobra.Command{
		Use:   "feed",
		Short: "Run candle feeds",
		Long: `Run one or more candle feeds until interrupted. Feeds come from a
YAML config file, or from --exchange/--pair/--interval for a single
ad-hoc feed.`,
		RunE: runFeed,
	}
	feedCmd.Flags().String("config", "", "YAML config file (see config/feeds.yaml)")
	feedCmd.Flags().String("exchange", "", "Exchange registry name for a single feed")
	feedCmd.Flags().String("pair", "BTC-USDT", "Trading pair in BASE-QUOTE form")
	feedCmd.Flags().String("interval", "1m", "Candle interval")
	feedCmd.Flags().String("strategy", "auto", "Data source strategy (polling|websocket|auto)")
	feedCmd.Flags().Int("capacity", 500, "Window store capacity in bars")
	feedCmd.Flags().String("rest-url", "", "REST base URL override")
	feedCmd.Flags().String("ws-url", "", "WebSocket base URL override")
	feedCmd.Flags().String("metrics-addr", ":9100", "Prometheus listen address, empty to disable")
	feedCmd.Flags().Duration("print-every", 30*time.Second, "Window print cadence, 0 to disable")

	listCmd := &cobra.Command{
		Use:   "exchanges",
		Short: "List registered exchange adapters",
		RunE:  runListExchanges,
	}

	mockCmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Run the mock exchange server",
		Long: `Run a local exchange simulator serving the REST and WebSocket
surfaces of the selected venues, with generated candle data. Point
feeds at it with endpoint overrides.`,
		RunE: runMockServer,
	}
	mockCmd.Flags().StringSlice("venues", []string{"mockex"}, "Venue surfaces to serve (binance, okx, kucoin, mockex)")
	mockCmd.Flags().StringSlice("pairs", []string{"BTC-USDT:50000", "ETH-USDT:3000"}, "pair:anchor-price entries")
	mockCmd.Flags().StringSlice("intervals", []string{"1s", "1m", "5m"}, "Intervals to generate")
	mockCmd.Flags().Duration("latency", 0, "Artificial latency per request")
	mockCmd.Flags().Float64("packet-loss", 0, "Probability a request times out")
	mockCmd.Flags().Float64("error-rate", 0, "Probability a request fails with 502")

	rootCmd.AddCommand(feedCmd, listCmd, mockCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger builds the process logger for a level name and format.
func newLogger(level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	var out = zerolog.New(os.Stderr)
	if pretty {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return out.Level(lvl).With().Timestamp().Logger()
}
