// Package adapter defines the capability contract an exchange module
// implements, the shared error taxonomy, and the process-wide registry
// that maps exchange names to adapter constructors.
package adapter

import (
	"context"
	"net/url"

	"github.com/MementoRC/candles-feed/internal/candles"
)

// Adapter is the capability set bound to a single (exchange, market)
// pair. Implementations are stateless translators between the
// canonical bar shape and one venue's wire shapes; all network I/O
// stays in the caller.
type Adapter interface {
	// Exchange returns the registry name, e.g. "binance" or
	// "binance_perpetual".
	Exchange() string

	// FormatPair renders a canonical pair in the venue's symbol
	// format ("BTC-USDT" to "BTCUSDT", "BTC_USDT", "BTC/USD", ...).
	FormatPair(p Pair) string

	// RESTURL and WSURL return the endpoints the adapter was
	// constructed with, production defaults unless overridden.
	RESTURL() string
	WSURL() string

	// Intervals enumerates the canonical interval names the venue
	// serves over REST; WSIntervals is the subset streamable over
	// WebSocket.
	Intervals() IntervalTable
	WSIntervals() map[string]struct{}

	// RESTParams encodes the historical-fetch query for one pair and
	// interval, rendering timestamps in the venue's declared unit.
	RESTParams(p Pair, interval string, opts FetchOpts) url.Values

	// ParseREST decodes a historical-fetch response body into bars.
	// A nil, empty, or null payload yields an empty slice. An
	// envelope that does not match the venue's layout yields a
	// shape-kind error; defective rows inside a well-formed envelope
	// are skipped.
	ParseREST(payload []byte) ([]candles.Bar, error)

	// WSSubscribePayload builds the subscription message for one pair
	// and interval along with the venue's subscription key (topic or
	// channel string) used to route incoming frames.
	WSSubscribePayload(p Pair, interval string) (payload any, key string)

	// ParseWS decodes one text frame. ok is false when the frame is
	// not a bar update (ack, heartbeat, other channel, junk).
	ParseWS(frame []byte) (bars []candles.Bar, ok bool)

	// Settings returns the venue's fixed behavioral knobs.
	Settings() Settings
}

// FetchOpts narrows a historical fetch. Zero values mean "absent":
// venues receive only the parameters the caller set.
type FetchOpts struct {
	StartSeconds int64
	EndSeconds   int64
	Limit        int
}

// RESTClient is the shape of the HTTP assistant adapters may use for
// connection preparation (token handshakes). The default network
// client satisfies it; hosts may inject their own.
type RESTClient interface {
	GetJSON(ctx context.Context, rawURL string, params url.Values) ([]byte, error)
	PostJSON(ctx context.Context, rawURL string, body any) ([]byte, error)
}

// Endpoints overrides an adapter's production URLs at construction.
// Zero fields keep the defaults. Tests point these at the mock
// exchange server instead of mutating adapter globals.
type Endpoints struct {
	REST string
	WS   string
}

// OrDefault fills unset fields from the venue's production URLs.
func (e Endpoints) OrDefault(rest, ws string) Endpoints {
	if e.REST == "" {
		e.REST = rest
	}
	if e.WS == "" {
		e.WS = ws
	}
	return e
}

// EnsureSeconds normalizes any wire timestamp encoding to Unix
// seconds; see the bar layer for the magnitude heuristic.
func EnsureSeconds(v any) (int64, error) {
	return candles.EnsureSeconds(v)
}
