// Package coinbase adapts the Coinbase Advanced Trade spot market.
// Candles are objects rather than positional arrays, granularities are
// enumerated names rather than durations, and query timestamps travel
// as RFC 3339 strings.
package coinbase

import (
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/MementoRC/candles-feed/internal/adapter"
	"github.com/MementoRC/candles-feed/internal/candles"
)

const (
	Name = "coinbase"

	defaultRESTBase = "https://api.coinbase.com"
	defaultWSBase   = "wss://advanced-trade-ws.coinbase.com"

	candlesPath = "/api/v3/brokerage/market/products/candles"
)

var intervals = adapter.IntervalTable{
	"1m":  {Seconds: 60, Wire: "ONE_MINUTE"},
	"5m":  {Seconds: 300, Wire: "FIVE_MINUTE"},
	"15m": {Seconds: 900, Wire: "FIFTEEN_MINUTE"},
	"30m": {Seconds: 1800, Wire: "THIRTY_MINUTE"},
	"1h":  {Seconds: 3600, Wire: "ONE_HOUR"},
	"2h":  {Seconds: 7200, Wire: "TWO_HOUR"},
	"6h":  {Seconds: 21600, Wire: "SIX_HOUR"},
	"1d":  {Seconds: 86400, Wire: "ONE_DAY"},
}

// The candles channel streams five-minute buckets only.
var wsIntervals = adapter.WSSet("5m")

func init() {
	adapter.MustRegister(Name, func(e adapter.Endpoints) adapter.Adapter { return New(e) })
}

// Adapter serves the Coinbase spot market.
type Adapter struct {
	endpoints adapter.Endpoints
}

// New builds the spot-market adapter.
func New(e adapter.Endpoints) *Adapter {
	return &Adapter{endpoints: e.OrDefault(defaultRESTBase, defaultWSBase)}
}

func (a *Adapter) Exchange() string { return Name }

// FormatPair keeps the canonical dash form ("BTC-USD").
func (a *Adapter) FormatPair(p adapter.Pair) string { return p.Join("-") }

func (a *Adapter) RESTURL() string { return a.endpoints.REST + candlesPath }

func (a *Adapter) WSURL() string { return a.endpoints.WS }

func (a *Adapter) Intervals() adapter.IntervalTable { return intervals }

func (a *Adapter) WSIntervals() map[string]struct{} { return wsIntervals }

func (a *Adapter) RESTParams(p adapter.Pair, interval string, opts adapter.FetchOpts) url.Values {
	wire, _ := intervals.Wire(interval)
	params := url.Values{
		"product_id":  {a.FormatPair(p)},
		"granularity": {wire},
	}
	if opts.StartSeconds > 0 {
		params.Set("start", adapter.UnitISO8601.QueryValue(opts.StartSeconds))
	}
	if opts.EndSeconds > 0 {
		params.Set("end", adapter.UnitISO8601.QueryValue(opts.EndSeconds))
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	return params
}

// ParseREST decodes the candles envelope. Buckets arrive newest first
// and come back ascending; trade counts and taker volumes are not
// served, so those fields stay zero.
func (a *Adapter) ParseREST(payload []byte) ([]candles.Bar, error) {
	if len(payload) == 0 || string(payload) == "null" {
		return nil, nil
	}
	var resp restResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, adapter.ShapeError(Name, "candles response is not a Coinbase envelope")
	}
	bars := make([]candles.Bar, 0, len(resp.Candles))
	for i := len(resp.Candles) - 1; i >= 0; i-- {
		b, ok := parseCandle(resp.Candles[i])
		if !ok {
			continue
		}
		bars = append(bars, b)
	}
	if len(bars) == 0 && len(resp.Candles) > 0 {
		return nil, adapter.ShapeError(Name, "no candle object decoded")
	}
	return bars, nil
}

func (a *Adapter) WSSubscribePayload(p adapter.Pair, interval string) (any, string) {
	productID := a.FormatPair(p)
	payload := map[string]any{
		"type":        "subscribe",
		"product_ids": []string{productID},
		"channel":     "candles",
	}
	return payload, "candles:" + productID
}

// ParseWS decodes one message. Everything outside the candles channel
// (subscription confirmations, heartbeats) reports ok false.
func (a *Adapter) ParseWS(frame []byte) ([]candles.Bar, bool) {
	var msg wsMessage
	if err := json.Unmarshal(frame, &msg); err != nil || msg.Channel != "candles" {
		return nil, false
	}
	var bars []candles.Bar
	for _, ev := range msg.Events {
		for _, c := range ev.Candles {
			b, ok := parseCandle(c)
			if !ok {
				continue
			}
			bars = append(bars, b)
		}
	}
	if len(bars) == 0 {
		return nil, false
	}
	return bars, true
}

func (a *Adapter) Settings() adapter.Settings {
	return adapter.Settings{
		TimestampUnit:     adapter.UnitISO8601,
		KeepAlive:         adapter.KeepAlive{Kind: adapter.KeepAliveNone},
		MaxBarsPerRequest: 350,
	}
}

// parseCandle reads one candle object. The start field is a timestamp
// in whatever rendering the venue chose for the route (seconds string
// on the stream, RFC 3339 elsewhere); EnsureSeconds accepts both.
func parseCandle(c wireCandle) (candles.Bar, bool) {
	ts, err := candles.EnsureSeconds(c.Start)
	if err != nil {
		return candles.Bar{}, false
	}
	open, err1 := candles.ToFloat(c.Open)
	high, err2 := candles.ToFloat(c.High)
	low, err3 := candles.ToFloat(c.Low)
	closePx, err4 := candles.ToFloat(c.Close)
	vol, err5 := candles.ToFloat(c.Volume)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return candles.Bar{}, false
	}
	return candles.Bar{
		OpenTime: ts,
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closePx,
		Volume:   vol,
	}, true
}

// Wire shapes.

type wireCandle struct {
	Start  string `json:"start"`
	Low    string `json:"low"`
	High   string `json:"high"`
	Open   string `json:"open"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
}

type restResponse struct {
	Candles []wireCandle `json:"candles"`
}

type wsMessage struct {
	Channel string `json:"channel"`
	Events  []struct {
		Type    string       `json:"type"`
		Candles []wireCandle `json:"candles"`
	} `json:"events"`
}
