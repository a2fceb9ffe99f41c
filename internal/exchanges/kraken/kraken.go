// Package kraken adapts the Kraken spot market. Kraken works in Unix
// seconds, wraps REST results in a symbol-keyed map, and streams OHLC
// updates as positional arrays on a numbered channel. Its historical
// fetch is flagged synchronous, so the polling strategy dispatches it
// on a worker.
package kraken

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MementoRC/candles-feed/internal/adapter"
	"github.com/MementoRC/candles-feed/internal/candles"
)

const (
	Name = "kraken"

	defaultRESTBase = "https://api.kraken.com"
	defaultWSBase   = "wss://ws.kraken.com"

	ohlcPath = "/0/public/OHLC"
)

// Kraken's interval codes are minutes.
var intervals = adapter.IntervalTable{
	"1m":  {Seconds: 60, Wire: "1"},
	"5m":  {Seconds: 300, Wire: "5"},
	"15m": {Seconds: 900, Wire: "15"},
	"30m": {Seconds: 1800, Wire: "30"},
	"1h":  {Seconds: 3600, Wire: "60"},
	"4h":  {Seconds: 14400, Wire: "240"},
	"1d":  {Seconds: 86400, Wire: "1440"},
}

var wsIntervals = adapter.WSSet("1m", "5m", "15m", "30m", "1h", "4h", "1d")

// legacyAssets maps canonical symbols to Kraken's asset codes.
var legacyAssets = map[string]string{
	"BTC":  "XBT",
	"DOGE": "XDG",
}

func init() {
	adapter.MustRegister(Name, func(e adapter.Endpoints) adapter.Adapter { return New(e) })
}

// Adapter serves the Kraken spot market.
type Adapter struct {
	endpoints adapter.Endpoints
}

// New builds the spot-market adapter.
func New(e adapter.Endpoints) *Adapter {
	return &Adapter{endpoints: e.OrDefault(defaultRESTBase, defaultWSBase)}
}

func (a *Adapter) Exchange() string { return Name }

// FormatPair renders the REST symbol ("XBTUSD"). The WebSocket side
// uses the slash form, see wsPair.
func (a *Adapter) FormatPair(p adapter.Pair) string {
	return asset(p.Base) + asset(p.Quote)
}

func (a *Adapter) RESTURL() string { return a.endpoints.REST + ohlcPath }

func (a *Adapter) WSURL() string { return a.endpoints.WS }

func (a *Adapter) Intervals() adapter.IntervalTable { return intervals }

func (a *Adapter) WSIntervals() map[string]struct{} { return wsIntervals }

// RESTParams encodes the OHLC query. Kraken's "since" is exclusive and
// there is no end parameter; callers trim on their side.
func (a *Adapter) RESTParams(p adapter.Pair, interval string, opts adapter.FetchOpts) url.Values {
	wire, _ := intervals.Wire(interval)
	params := url.Values{
		"pair":     {a.FormatPair(p)},
		"interval": {wire},
	}
	if opts.StartSeconds > 0 {
		params.Set("since", strconv.FormatInt(opts.StartSeconds-1, 10))
	}
	return params
}

// ParseREST decodes the OHLC envelope: an error list plus a result map
// keyed by Kraken's own symbol spelling, with a "last" cursor entry
// that is skipped.
func (a *Adapter) ParseREST(payload []byte) ([]candles.Bar, error) {
	if len(payload) == 0 || string(payload) == "null" {
		return nil, nil
	}
	var resp restResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, adapter.ShapeError(Name, "OHLC response is not a Kraken envelope")
	}
	if len(resp.Error) > 0 {
		return nil, &adapter.Error{
			Exchange: Name,
			Kind:     adapter.KindProtocol,
			Message:  strings.Join(resp.Error, "; "),
		}
	}
	var bars []candles.Bar
	for key, raw := range resp.Result {
		if key == "last" {
			continue
		}
		var rows [][]any
		if err := json.Unmarshal(raw, &rows); err != nil {
			continue
		}
		for _, row := range rows {
			b, ok := parseOHLCRow(row)
			if !ok {
				continue
			}
			bars = append(bars, b)
		}
	}
	if len(bars) == 0 && len(resp.Result) > 1 {
		return nil, adapter.ShapeError(Name, "no OHLC row decoded")
	}
	return bars, nil
}

func (a *Adapter) WSSubscribePayload(p adapter.Pair, interval string) (any, string) {
	wire, _ := intervals.Wire(interval)
	minutes, _ := strconv.Atoi(wire)
	pair := wsPair(p)
	payload := map[string]any{
		"event": "subscribe",
		"pair":  []string{pair},
		"subscription": map[string]any{
			"name":     "ohlc",
			"interval": minutes,
		},
	}
	return payload, "ohlc-" + wire + ":" + pair
}

// ParseWS decodes one frame. Data frames are arrays of
// [channelID, payload, channelName, pair]; everything object-shaped
// (subscriptionStatus, heartbeat, pong) reports ok false.
func (a *Adapter) ParseWS(frame []byte) ([]candles.Bar, bool) {
	var parts []json.RawMessage
	if err := json.Unmarshal(frame, &parts); err != nil || len(parts) < 4 {
		return nil, false
	}
	var channel string
	if err := json.Unmarshal(parts[2], &channel); err != nil || !strings.HasPrefix(channel, "ohlc-") {
		return nil, false
	}
	minutes, err := strconv.ParseInt(strings.TrimPrefix(channel, "ohlc-"), 10, 64)
	if err != nil || minutes <= 0 {
		return nil, false
	}
	var row []any
	if err := json.Unmarshal(parts[1], &row); err != nil || len(row) < 8 {
		return nil, false
	}
	// Payload: [time, etime, open, high, low, close, vwap, volume,
	// count]; the bar's open time is the interval end minus the
	// interval.
	end, err := candles.EnsureSeconds(row[1])
	if err != nil {
		return nil, false
	}
	open, err1 := candles.ToFloat(row[2])
	high, err2 := candles.ToFloat(row[3])
	low, err3 := candles.ToFloat(row[4])
	closePx, err4 := candles.ToFloat(row[5])
	vol, err5 := candles.ToFloat(row[7])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return nil, false
	}
	b := candles.Bar{
		OpenTime: end - minutes*60,
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closePx,
		Volume:   vol,
	}
	if len(row) > 8 {
		b.TradeCount, _ = candles.ToCount(row[8])
	}
	return []candles.Bar{b}, true
}

func (a *Adapter) Settings() adapter.Settings {
	return adapter.Settings{
		TimestampUnit: adapter.UnitSeconds,
		KeepAlive: adapter.KeepAlive{
			Kind:     adapter.KeepAliveText,
			Interval: 30 * time.Second,
			Payload:  `{"event":"ping"}`,
		},
		MaxBarsPerRequest: 720,
		SyncFetch:         true,
	}
}

// parseOHLCRow reads one REST row: time (s), open, high, low, close,
// vwap, volume, count.
func parseOHLCRow(row []any) (candles.Bar, bool) {
	if len(row) < 7 {
		return candles.Bar{}, false
	}
	ts, err := candles.EnsureSeconds(row[0])
	if err != nil {
		return candles.Bar{}, false
	}
	open, err1 := candles.ToFloat(row[1])
	high, err2 := candles.ToFloat(row[2])
	low, err3 := candles.ToFloat(row[3])
	closePx, err4 := candles.ToFloat(row[4])
	vol, err5 := candles.ToFloat(row[6])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return candles.Bar{}, false
	}
	b := candles.Bar{
		OpenTime: ts,
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closePx,
		Volume:   vol,
	}
	if len(row) > 7 {
		b.TradeCount, _ = candles.ToCount(row[7])
	}
	return b, true
}

func asset(symbol string) string {
	if mapped, ok := legacyAssets[symbol]; ok {
		return mapped
	}
	return symbol
}

// wsPair renders the WebSocket pair form ("XBT/USD").
func wsPair(p adapter.Pair) string {
	return asset(p.Base) + "/" + asset(p.Quote)
}

// Wire shapes.

type restResponse struct {
	Error  []string                   `json:"error"`
	Result map[string]json.RawMessage `json:"result"`
}
