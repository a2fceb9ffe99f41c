package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/MementoRC/candles-feed/internal/adapter"
	"github.com/MementoRC/candles-feed/internal/config"
	"github.com/MementoRC/candles-feed/internal/feed"
	"github.com/MementoRC/candles-feed/internal/metrics"
	"github.com/MementoRC/candles-feed/internal/netclient"

	_ "github.com/MementoRC/candles-feed/internal/exchanges/all"
)

func runFeed(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	var root *config.Root
	if configPath != "" {
		var err error
		if root, err = config.Load(configPath); err != nil {
			return err
		}
	} else {
		root = config.Default()
		exchange, _ := cmd.Flags().GetString("exchange")
		if exchange == "" {
			return fmt.Errorf("either --config or --exchange is required")
		}
		pair, _ := cmd.Flags().GetString("pair")
		interval, _ := cmd.Flags().GetString("interval")
		strategy, _ := cmd.Flags().GetString("strategy")
		capacity, _ := cmd.Flags().GetInt("capacity")
		root.Feeds = []config.Feed{{
			Exchange: exchange,
			Pair:     pair,
			Interval: interval,
			Strategy: strategy,
			Capacity: capacity,
		}}
		restURL, _ := cmd.Flags().GetString("rest-url")
		wsURL, _ := cmd.Flags().GetString("ws-url")
		if restURL != "" || wsURL != "" {
			root.Endpoints = map[string]config.Endpoints{
				exchange: {REST: restURL, WS: wsURL},
			}
		}
		if err := root.Validate(); err != nil {
			return err
		}
	}
	if len(root.Feeds) == 0 {
		return fmt.Errorf("no feeds configured")
	}

	log := newLogger(root.Logging.Level, root.Logging.Pretty)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	met := metrics.NewFeed(registry)

	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	if metricsAddr != "" {
		go serveMetrics(log, metricsAddr, registry)
	}

	controllers := make([]*feed.Controller, 0, len(root.Feeds))
	for _, fc := range root.Feeds {
		ctrl, err := buildController(root, fc, log, met)
		if err != nil {
			return err
		}
		kind, err := feed.ParseKind(fc.Strategy)
		if err != nil {
			return err
		}
		if err := ctrl.Start(kind); err != nil {
			return err
		}
		controllers = append(controllers, ctrl)
	}

	printEvery, _ := cmd.Flags().GetDuration("print-every")
	done := make(chan struct{})
	if printEvery > 0 {
		go printLoop(log, controllers, printEvery, done)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	close(done)
	log.Info().Msg("shutting down")

	for _, ctrl := range controllers {
		ctrl.Stop()
		summarize(log, ctrl)
	}
	return nil
}

func buildController(root *config.Root, fc config.Feed, log zerolog.Logger, met *metrics.Feed) (*feed.Controller, error) {
	pair, err := adapter.ParsePair(fc.Pair)
	if err != nil {
		return nil, err
	}
	rest := netclient.New(netclient.Config{
		Name:       fc.Exchange,
		Timeout:    root.Client.Timeout(),
		RPS:        root.Client.RPS,
		Burst:      root.Client.Burst,
		RetryLimit: root.Client.RetryLimit,
		RetryDelay: root.Client.RetryDelay(),
		Logger:     log,
		MetricsCallback: func(event string, _ any) {
			if event == "rest_retry" {
				met.RESTRetry(fc.Exchange)
			}
		},
	})
	return feed.New(feed.Config{
		Exchange:   fc.Exchange,
		Endpoints:  root.EndpointsFor(fc.Exchange),
		Pair:       pair,
		Interval:   fc.Interval,
		Capacity:   fc.Capacity,
		FetchLimit: fc.FetchLimit,
		PollLag:    fc.PollLag(),
		REST:       rest,
		Logger:     log,
		Metrics:    met,
	})
}

// printLoop writes the tail of each feed's tabular window to stdout on
// a fixed cadence until done closes.
func printLoop(log zerolog.Logger, controllers []*feed.Controller, every time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			for _, ctrl := range controllers {
				printTable(ctrl, 5)
			}
		}
	}
}

// printTable prints the newest rows of one feed's window.
func printTable(ctrl *feed.Controller, tail int) {
	t := ctrl.Table()
	fmt.Printf("%s %s %s (%d bars)\n", ctrl.Exchange(), ctrl.Pair(), ctrl.Interval(), t.Len())
	start := t.Len() - tail
	if start < 0 {
		start = 0
	}
	for i := start; i < t.Len(); i++ {
		fmt.Printf("  %s  o=%.8g h=%.8g l=%.8g c=%.8g v=%.8g n=%d\n",
			time.Unix(t.OpenTime[i], 0).UTC().Format(time.RFC3339),
			t.Open[i], t.High[i], t.Low[i], t.Close[i], t.Volume[i], t.TradeCount[i])
	}
}

// summarize logs one stopped feed's final window state.
func summarize(log zerolog.Logger, ctrl *feed.Controller) {
	ev := log.Info().
		Str("exchange", ctrl.Exchange()).
		Str("pair", ctrl.Pair().String()).
		Str("interval", ctrl.Interval()).
		Int("bars", ctrl.Store().Len()).
		Bool("gap_free", ctrl.GapFree())
	if oldest, ok := ctrl.Store().Oldest(); ok {
		ev = ev.Time("oldest", time.Unix(oldest.OpenTime, 0).UTC())
	}
	if newest, ok := ctrl.Store().Newest(); ok {
		ev = ev.Time("newest", time.Unix(newest.OpenTime, 0).UTC()).
			Float64("close", newest.Close)
	}
	ev.Msg("feed summary")
}

func serveMetrics(log zerolog.Logger, addr string, registry *prometheus.Registry) {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	log.Info().Str("addr", addr).Msg("metrics endpoint up")
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Error().Err(err).Msg("metrics endpoint failed")
	}
}

func runListExchanges(cmd *cobra.Command, _ []string) error {
	names := adapter.Names()
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintln(cmd.OutOrStdout(), name)
	}
	return nil
}
