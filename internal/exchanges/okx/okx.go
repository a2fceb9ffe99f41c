// Package okx adapts OKX spot and perpetual-swap markets. Instruments
// keep the canonical dash form, with a -SWAP suffix for perpetuals;
// candle rows are nine-element string arrays listed newest first.
package okx

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
	SpotName = "okx"
	PerpName = "okx_perpetual"

	defaultRESTBase = "https://www.okx.com"
	defaultWSBase   = "wss://ws.okx.com:8443"

	candlesPath = "/api/v5/market/candles"
	wsPath      = "/ws/v5/business"
)

var intervals = adapter.IntervalTable{
	"1m":  {Seconds: 60, Wire: "1m"},
	"3m":  {Seconds: 180, Wire: "3m"},
	"5m":  {Seconds: 300, Wire: "5m"},
	"15m": {Seconds: 900, Wire: "15m"},
	"30m": {Seconds: 1800, Wire: "30m"},
	"1h":  {Seconds: 3600, Wire: "1H"},
	"4h":  {Seconds: 14400, Wire: "4H"},
	"1d":  {Seconds: 86400, Wire: "1D"},
}

var wsIntervals = adapter.WSSet("1m", "3m", "5m", "15m", "30m", "1h", "4h", "1d")

func init() {
	adapter.MustRegister(SpotName, func(e adapter.Endpoints) adapter.Adapter { return NewSpot(e) })
	adapter.MustRegister(PerpName, func(e adapter.Endpoints) adapter.Adapter { return NewPerpetual(e) })
}

// Adapter serves one OKX instrument family.
type Adapter struct {
	name      string
	swap      bool
	endpoints adapter.Endpoints
}

// NewSpot builds the spot-market adapter.
func NewSpot(e adapter.Endpoints) *Adapter {
	return &Adapter{
		name:      SpotName,
		endpoints: e.OrDefault(defaultRESTBase, defaultWSBase),
	}
}

// NewPerpetual builds the perpetual-swap adapter.
func NewPerpetual(e adapter.Endpoints) *Adapter {
	return &Adapter{
		name:      PerpName,
		swap:      true,
		endpoints: e.OrDefault(defaultRESTBase, defaultWSBase),
	}
}

func (a *Adapter) Exchange() string { return a.name }

// FormatPair keeps the dash form; swaps append the instrument suffix.
func (a *Adapter) FormatPair(p adapter.Pair) string {
	if a.swap {
		return p.Join("-") + "-SWAP"
	}
	return p.Join("-")
}

func (a *Adapter) RESTURL() string { return a.endpoints.REST + candlesPath }

func (a *Adapter) WSURL() string { return a.endpoints.WS + wsPath }

func (a *Adapter) Intervals() adapter.IntervalTable { return intervals }

func (a *Adapter) WSIntervals() map[string]struct{} { return wsIntervals }

// RESTParams encodes the fetch window with OKX's pagination cursors:
// "before" excludes everything at or older than its timestamp, "after"
// everything at or newer, so the bounds sit one millisecond outside
// the requested range.
func (a *Adapter) RESTParams(p adapter.Pair, interval string, opts adapter.FetchOpts) url.Values {
	wire, _ := intervals.Wire(interval)
	params := url.Values{
		"instId": {a.FormatPair(p)},
		"bar":    {wire},
	}
	if opts.StartSeconds > 0 {
		params.Set("before", strconv.FormatInt(opts.StartSeconds*1000-1, 10))
	}
	if opts.EndSeconds > 0 {
		params.Set("after", strconv.FormatInt(opts.EndSeconds*1000+1, 10))
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	return params
}

// ParseREST decodes the candles envelope. A non-zero code is an
// in-band protocol error; rows arrive newest first and come back
// ascending.
func (a *Adapter) ParseREST(payload []byte) ([]candles.Bar, error) {
	if len(payload) == 0 || string(payload) == "null" {
		return nil, nil
	}
	var resp restResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, adapter.ShapeError(a.name, "candles response is not an OKX envelope")
	}
	if resp.Code != "" && resp.Code != "0" {
		return nil, &adapter.Error{
			Exchange: a.name,
			Kind:     adapter.KindProtocol,
			Message:  "code " + resp.Code + ": " + resp.Msg,
		}
	}
	bars := make([]candles.Bar, 0, len(resp.Data))
	for i := len(resp.Data) - 1; i >= 0; i-- {
		b, ok := parseRow(resp.Data[i])
		if !ok {
			continue
		}
		bars = append(bars, b)
	}
	if len(bars) == 0 && len(resp.Data) > 0 {
		return nil, adapter.ShapeError(a.name, "no candle row decoded")
	}
	return bars, nil
}

func (a *Adapter) WSSubscribePayload(p adapter.Pair, interval string) (any, string) {
	wire, _ := intervals.Wire(interval)
	channel := "candle" + wire
	instID := a.FormatPair(p)
	payload := map[string]any{
		"op": "subscribe",
		"args": []map[string]string{{
			"channel": channel,
			"instId":  instID,
		}},
	}
	return payload, channel + ":" + instID
}

// ParseWS decodes one push frame. Event frames (subscribe acks,
// errors) and the plain "pong" reply report ok false.
func (a *Adapter) ParseWS(frame []byte) ([]candles.Bar, bool) {
	if string(frame) == "pong" {
		return nil, false
	}
	var msg wsMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		return nil, false
	}
	if msg.Event != "" || !strings.HasPrefix(msg.Arg.Channel, "candle") || len(msg.Data) == 0 {
		return nil, false
	}
	bars := make([]candles.Bar, 0, len(msg.Data))
	for _, row := range msg.Data {
		b, ok := parseRow(row)
		if !ok {
			continue
		}
		bars = append(bars, b)
	}
	if len(bars) == 0 {
		return nil, false
	}
	return bars, true
}

func (a *Adapter) Settings() adapter.Settings {
	return adapter.Settings{
		TimestampUnit: adapter.UnitMilliseconds,
		KeepAlive: adapter.KeepAlive{
			Kind:     adapter.KeepAliveText,
			Interval: 25 * time.Second,
			Payload:  "ping",
		},
		MaxBarsPerRequest: 300,
	}
}

// parseRow reads one nine-element row: ts (ms string), open, high,
// low, close, volume, quote volume in base ccy, quote volume, confirm
// flag.
func parseRow(row []string) (candles.Bar, bool) {
	if len(row) < 6 {
		return candles.Bar{}, false
	}
	ts, err := candles.EnsureSeconds(row[0])
	if err != nil {
		return candles.Bar{}, false
	}
	var vals [5]float64
	for i := 0; i < 5; i++ {
		v, err := candles.ToFloat(row[i+1])
		if err != nil {
			return candles.Bar{}, false
		}
		vals[i] = v
	}
	b := candles.Bar{
		OpenTime: ts,
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
	}
	if len(row) > 7 {
		b.QuoteVolume, _ = candles.ToFloat(row[7])
	}
	return b, true
}

// Wire shapes.

type restResponse struct {
	Code string     `json:"code"`
	Msg  string     `json:"msg"`
	Data [][]string `json:"data"`
}

type wsMessage struct {
	Event string `json:"event"`
	Arg   struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data [][]string `json:"data"`
}
