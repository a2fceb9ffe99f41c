package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MementoRC/candles-feed/internal/mockex"
)

func runMockServer(cmd *cobra.Command, _ []string) error {
	venues, _ := cmd.Flags().GetStringSlice("venues")
	pairSpecs, _ := cmd.Flags().GetStringSlice("pairs")
	intervals, _ := cmd.Flags().GetStringSlice("intervals")
	latency, _ := cmd.Flags().GetDuration("latency")
	packetLoss, _ := cmd.Flags().GetFloat64("packet-loss")
	errorRate, _ := cmd.Flags().GetFloat64("error-rate")

	log := newLogger("info", true)

	plugins := make([]mockex.Plugin, 0, len(venues))
	for _, venue := range venues {
		switch venue {
		case "binance":
			plugins = append(plugins, mockex.NewBinancePlugin())
		case "okx":
			plugins = append(plugins, mockex.NewOKXPlugin())
		case "kucoin":
			plugins = append(plugins, mockex.NewKuCoinPlugin())
		case "mockex":
			plugins = append(plugins, mockex.NewNativePlugin())
		default:
			return fmt.Errorf("unknown venue %q (have binance, okx, kucoin, mockex)", venue)
		}
	}

	srv, err := mockex.NewServer(log, plugins...)
	if err != nil {
		return err
	}
	for _, spec := range pairSpecs {
		pair, price, err := parsePairSpec(spec)
		if err != nil {
			return err
		}
		if err := srv.AddTradingPair(pair, price, intervals...); err != nil {
			return err
		}
	}
	if latency > 0 || packetLoss > 0 || errorRate > 0 {
		srv.SetNetworkConditions(mockex.NetworkConditions{
			Latency:    latency,
			PacketLoss: packetLoss,
			ErrorRate:  errorRate,
		})
	}

	if err := srv.Start(); err != nil {
		return err
	}
	defer srv.Stop()

	for _, venue := range venues {
		eps, err := srv.Endpoints(venue)
		if err != nil {
			return err
		}
		log.Info().Str("venue", venue).Str("rest", eps.REST).Str("ws", eps.WS).Msg("serving")
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")
	return nil
}

// parsePairSpec reads a "BASE-QUOTE:price" entry.
func parsePairSpec(spec string) (string, float64, error) {
	pair, priceStr, ok := strings.Cut(spec, ":")
	if !ok {
		return "", 0, fmt.Errorf("pair spec %q is not pair:price", spec)
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil || price <= 0 {
		return "", 0, fmt.Errorf("pair spec %q has a bad price", spec)
	}
	return pair, price, nil
}
