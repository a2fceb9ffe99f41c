// Package mockex is a self-contained HTTP + WebSocket exchange
// simulator. A generic server hosts per-exchange plugins that
// reproduce each venue's public market-data surface — REST candle
// routes, subscription handling, frame shapes — well enough to drive
// the feed runtime through its full strategy state machine under
// controlled latency, packet loss, error and rate-limit conditions.
package mockex

import (
	"net/url"
	"strings"

	"github.com/MementoRC/candles-feed/internal/candles"
)

// CandleQuery is a venue candle request normalized by the plugin:
// symbol as sent on the wire, canonical interval name, range bounds in
// Unix seconds (zero when absent) and a row limit.
type CandleQuery struct {
	Symbol   string
	Interval string
	Start    int64
	End      int64
	Limit    int
}

// SubRequest is one (symbol, interval) a client asked to stream,
// symbol still in the venue's spelling.
type SubRequest struct {
	Symbol   string
	Interval string
}

// Subscription is a resolved stream binding: canonical pair plus
// canonical interval.
type Subscription struct {
	Pair     string
	Interval string
}

// Route binds one REST path to a named handler of the generic server.
// Handler names the server understands: "candles", "ping", "time",
// "bullet".
type Route struct {
	Method  string
	Path    string
	Handler string
}

// Overrides carries a plugin's optional deviations from server
// defaults. Zero values keep the defaults.
type Overrides struct {
	// RateLimitPerMinute is the per-IP weight budget of the sliding
	// window.
	RateLimitPerMinute int

	// CandleWeight is the weight one candles request costs.
	CandleWeight int
}

// Plugin reproduces one exchange's wire surface. Plugins only shape
// payloads; latency, faults and rate limiting are applied uniformly by
// the server envelope.
type Plugin interface {
	// Name is the exchange id, matching the adapter registry name.
	Name() string

	// RESTRoutes lists the venue's REST paths.
	RESTRoutes() []Route

	// WSPath is the venue's WebSocket endpoint path.
	WSPath() string

	// ParseCandleQuery normalizes the venue's candle query
	// parameters.
	ParseCandleQuery(params url.Values) (CandleQuery, error)

	// FormatRESTCandles renders the venue's candle response body.
	FormatRESTCandles(q CandleQuery, bars []candles.Bar) any

	// FormatWSCandle renders one streamed candle frame.
	FormatWSCandle(sub Subscription, bar candles.Bar) any

	// ParseSubscription decodes a subscribe or unsubscribe frame.
	// op is "subscribe" or "unsubscribe"; ok is false when the frame
	// is neither. id echoes whatever request identity the venue
	// acks with.
	ParseSubscription(frame []byte) (op string, subs []SubRequest, id any, ok bool)

	// AckFrame renders the venue's subscription acknowledgement, nil
	// for venues that do not ack.
	AckFrame(op string, subs []SubRequest, id any) any

	// ControlReply answers venue-level keep-alive frames ("ping"
	// text, ping objects). handled is false when the frame is not a
	// control frame; a handled frame with a nil reply is swallowed.
	ControlReply(frame []byte) (reply any, handled bool)

	// SubscriptionKey maps a resolved subscription to the internal
	// routing identifier, deterministically.
	SubscriptionKey(sub Subscription) string

	// ErrorBody renders the venue's error payload for a status code.
	ErrorBody(status int, msg string) any

	// Overrides returns the plugin's server-default deviations.
	Overrides() Overrides
}

// TextFrame is a reply written verbatim as a text message instead of
// being JSON-encoded. OKX answers "ping" with a bare "pong".
type TextFrame string

// stripKey folds a symbol to its routing form: uppercase
// alphanumerics only, so "BTC-USDT", "BTC_USDT", "btcusdt" and
// "BTCUSDT" all collide. Venue-specific suffixes are the plugin's
// business to trim before lookup.
func stripKey(symbol string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(symbol) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// intervalSeconds is the canonical interval directory the simulator
// serves.
var intervalSeconds = map[string]int64{
	"1s":  1,
	"5s":  5,
	"1m":  60,
	"3m":  180,
	"5m":  300,
	"15m": 900,
	"30m": 1800,
	"1h":  3600,
	"2h":  7200,
	"4h":  14400,
	"6h":  21600,
	"8h":  28800,
	"1d":  86400,
}
