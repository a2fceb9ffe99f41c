// Package all registers every exchange adapter with the registry.
// Binaries blank-import it; embedding hosts that want a narrower
// surface import individual venue packages instead.
package all

import (
	_ "github.com/MementoRC/candles-feed/internal/exchanges/binance"
	_ "github.com/MementoRC/candles-feed/internal/exchanges/bybit"
	_ "github.com/MementoRC/candles-feed/internal/exchanges/coinbase"
	_ "github.com/MementoRC/candles-feed/internal/exchanges/gateio"
	_ "github.com/MementoRC/candles-feed/internal/exchanges/kraken"
	_ "github.com/MementoRC/candles-feed/internal/exchanges/kucoin"
	_ "github.com/MementoRC/candles-feed/internal/exchanges/okx"
)
