package mockex

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/MementoRC/candles-feed/internal/adapter"
	"github.com/MementoRC/candles-feed/internal/candles"
)

// The native venue is the simulator's own wire surface: plain JSON,
// Unix seconds, numeric fields, and sub-minute intervals. It exists so
// end-to-end tests can run the full feed state machine against real
// sockets without waiting out minute boundaries.

const (
	NativeName = "mockex"

	nativeCandlesPath = "/api/candles"
	nativeWSPath      = "/stream"
)

var nativeIntervals = adapter.IntervalTable{
	"1s":  {Seconds: 1, Wire: "1s"},
	"5s":  {Seconds: 5, Wire: "5s"},
	"1m":  {Seconds: 60, Wire: "1m"},
	"5m":  {Seconds: 300, Wire: "5m"},
	"15m": {Seconds: 900, Wire: "15m"},
	"1h":  {Seconds: 3600, Wire: "1h"},
	"1d":  {Seconds: 86400, Wire: "1d"},
}

var nativeWSIntervals = adapter.WSSet("1s", "5s", "1m", "5m", "15m", "1h", "1d")

func init() {
	adapter.MustRegister(NativeName, func(e adapter.Endpoints) adapter.Adapter {
		return NewNativeAdapter(e)
	})
}

// NativePlugin serves the native surface on the generic server.
type NativePlugin struct{}

// NewNativePlugin builds the plugin.
func NewNativePlugin() *NativePlugin { return &NativePlugin{} }

func (p *NativePlugin) Name() string { return NativeName }

func (p *NativePlugin) RESTRoutes() []Route {
	return []Route{
		{Method: "GET", Path: nativeCandlesPath, Handler: "candles"},
		{Method: "GET", Path: "/api/time", Handler: "time"},
	}
}

func (p *NativePlugin) WSPath() string { return nativeWSPath }

func (p *NativePlugin) ParseCandleQuery(params url.Values) (CandleQuery, error) {
	q := CandleQuery{
		Symbol:   params.Get("symbol"),
		Interval: params.Get("interval"),
	}
	if q.Symbol == "" || q.Interval == "" {
		return q, fmt.Errorf("symbol and interval are required")
	}
	for _, f := range []struct {
		name string
		dst  *int64
	}{{"start", &q.Start}, {"end", &q.End}} {
		if v := params.Get(f.name); v != "" {
			ts, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return q, fmt.Errorf("bad %s %q", f.name, v)
			}
			*f.dst = ts
		}
	}
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return q, fmt.Errorf("bad limit %q", v)
		}
		q.Limit = n
	}
	return q, nil
}

func (p *NativePlugin) FormatRESTCandles(q CandleQuery, bars []candles.Bar) any {
	rows := make([][]any, 0, len(bars))
	for _, b := range bars {
		rows = append(rows, nativeRow(b))
	}
	return map[string]any{
		"symbol":   q.Symbol,
		"interval": q.Interval,
		"candles":  rows,
	}
}

func (p *NativePlugin) FormatWSCandle(sub Subscription, bar candles.Bar) any {
	return map[string]any{
		"type":     "candle",
		"symbol":   sub.Pair,
		"interval": sub.Interval,
		"bar":      nativeRow(bar),
	}
}

func (p *NativePlugin) ParseSubscription(frame []byte) (string, []SubRequest, any, bool) {
	var msg struct {
		Op       string `json:"op"`
		Symbol   string `json:"symbol"`
		Interval string `json:"interval"`
	}
	if err := json.Unmarshal(frame, &msg); err != nil {
		return "", nil, nil, false
	}
	if msg.Op != "subscribe" && msg.Op != "unsubscribe" {
		return "", nil, nil, false
	}
	return msg.Op, []SubRequest{{Symbol: msg.Symbol, Interval: msg.Interval}}, nil, true
}

func (p *NativePlugin) AckFrame(op string, subs []SubRequest, _ any) any {
	if len(subs) == 0 {
		return nil
	}
	return map[string]any{
		"op":       op + "d",
		"symbol":   subs[0].Symbol,
		"interval": subs[0].Interval,
	}
}

func (p *NativePlugin) ControlReply(frame []byte) (any, bool) {
	var msg struct {
		Op string `json:"op"`
	}
	if err := json.Unmarshal(frame, &msg); err != nil || msg.Op != "ping" {
		return nil, false
	}
	return map[string]any{"op": "pong"}, true
}

func (p *NativePlugin) SubscriptionKey(sub Subscription) string {
	return sub.Pair + "@" + sub.Interval
}

func (p *NativePlugin) ErrorBody(status int, msg string) any {
	return map[string]any{"error": msg, "status": status}
}

func (p *NativePlugin) Overrides() Overrides { return Overrides{} }

func nativeRow(b candles.Bar) []any {
	return []any{
		b.OpenTime, b.Open, b.High, b.Low, b.Close,
		b.Volume, b.QuoteVolume, b.TradeCount, b.TakerBuyBase, b.TakerBuyQuote,
	}
}

// NativeAdapter is the client side of the native surface, registered
// like any venue so the controller drives it unmodified.
type NativeAdapter struct {
	endpoints adapter.Endpoints
}

// NewNativeAdapter builds the adapter. The native venue has no public
// default endpoints; they always come from a running Server.
func NewNativeAdapter(e adapter.Endpoints) *NativeAdapter {
	return &NativeAdapter{endpoints: e.OrDefault("http://127.0.0.1:0", "ws://127.0.0.1:0")}
}

func (a *NativeAdapter) Exchange() string { return NativeName }

func (a *NativeAdapter) FormatPair(p adapter.Pair) string { return p.Join("-") }

func (a *NativeAdapter) RESTURL() string { return a.endpoints.REST + nativeCandlesPath }

func (a *NativeAdapter) WSURL() string { return a.endpoints.WS + nativeWSPath }

func (a *NativeAdapter) Intervals() adapter.IntervalTable { return nativeIntervals }

func (a *NativeAdapter) WSIntervals() map[string]struct{} { return nativeWSIntervals }

func (a *NativeAdapter) RESTParams(p adapter.Pair, interval string, opts adapter.FetchOpts) url.Values {
	params := url.Values{
		"symbol":   {a.FormatPair(p)},
		"interval": {interval},
	}
	if opts.StartSeconds > 0 {
		params.Set("start", strconv.FormatInt(opts.StartSeconds, 10))
	}
	if opts.EndSeconds > 0 {
		params.Set("end", strconv.FormatInt(opts.EndSeconds, 10))
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	return params
}

func (a *NativeAdapter) ParseREST(payload []byte) ([]candles.Bar, error) {
	if len(payload) == 0 || string(payload) == "null" {
		return nil, nil
	}
	var resp struct {
		Candles [][]json.Number `json:"candles"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, adapter.ShapeError(NativeName, "candles response is not a native envelope")
	}
	bars := make([]candles.Bar, 0, len(resp.Candles))
	for _, row := range resp.Candles {
		b, ok := parseNativeRow(row)
		if !ok {
			continue
		}
		bars = append(bars, b)
	}
	if len(bars) == 0 && len(resp.Candles) > 0 {
		return nil, adapter.ShapeError(NativeName, "no candle row decoded")
	}
	return bars, nil
}

func (a *NativeAdapter) WSSubscribePayload(p adapter.Pair, interval string) (any, string) {
	symbol := a.FormatPair(p)
	payload := map[string]any{
		"op":       "subscribe",
		"symbol":   symbol,
		"interval": interval,
	}
	return payload, symbol + "@" + interval
}

func (a *NativeAdapter) ParseWS(frame []byte) ([]candles.Bar, bool) {
	var msg struct {
		Type string        `json:"type"`
		Bar  []json.Number `json:"bar"`
	}
	if err := json.Unmarshal(frame, &msg); err != nil || msg.Type != "candle" {
		return nil, false
	}
	b, ok := parseNativeRow(msg.Bar)
	if !ok {
		return nil, false
	}
	return []candles.Bar{b}, true
}

func (a *NativeAdapter) Settings() adapter.Settings {
	return adapter.Settings{
		TimestampUnit: adapter.UnitSeconds,
		KeepAlive: adapter.KeepAlive{
			Kind:     adapter.KeepAliveText,
			Interval: 10 * time.Second,
			Payload:  `{"op":"ping"}`,
		},
		MaxBarsPerRequest: 500,
	}
}

func parseNativeRow(row []json.Number) (candles.Bar, bool) {
	if len(row) < 10 {
		return candles.Bar{}, false
	}
	ts, err := candles.EnsureSeconds(row[0])
	if err != nil {
		return candles.Bar{}, false
	}
	floats := make([]float64, len(row))
	for i, idx := range []int{1, 2, 3, 4, 5, 6, 8, 9} {
		v, err := candles.ToFloat(row[idx])
		if err != nil {
			return candles.Bar{}, false
		}
		floats[i] = v
	}
	trades, err := candles.ToCount(row[7])
	if err != nil {
		return candles.Bar{}, false
	}
	return candles.Bar{
		OpenTime:      ts,
		Open:          floats[0],
		High:          floats[1],
		Low:           floats[2],
		Close:         floats[3],
		Volume:        floats[4],
		QuoteVolume:   floats[5],
		TradeCount:    trades,
		TakerBuyBase:  floats[6],
		TakerBuyQuote: floats[7],
	}, true
}
