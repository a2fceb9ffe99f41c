// Package binance adapts Binance spot and USDT-margined perpetual
// markets. Both markets share one wire dialect: millisecond
// timestamps, decimal strings for prices and volumes, and the full
// taker-volume field set.
package binance

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/MementoRC/candles-feed/internal/adapter"
	"github.com/MementoRC/candles-feed/internal/candles"
)

const (
	SpotName = "binance"
	PerpName = "binance_perpetual"

	spotRESTBase = "https://api.binance.com"
	spotWSBase   = "wss://stream.binance.com:9443"
	perpRESTBase = "https://fapi.binance.com"
	perpWSBase   = "wss://fstream.binance.com"

	spotKlinesPath = "/api/v3/klines"
	perpKlinesPath = "/fapi/v1/klines"
	wsPath         = "/ws"
)

var intervals = adapter.IntervalTable{
	"1m":  {Seconds: 60, Wire: "1m"},
	"3m":  {Seconds: 180, Wire: "3m"},
	"5m":  {Seconds: 300, Wire: "5m"},
	"15m": {Seconds: 900, Wire: "15m"},
	"30m": {Seconds: 1800, Wire: "30m"},
	"1h":  {Seconds: 3600, Wire: "1h"},
	"4h":  {Seconds: 14400, Wire: "4h"},
	"1d":  {Seconds: 86400, Wire: "1d"},
}

var wsIntervals = adapter.WSSet("1m", "3m", "5m", "15m", "30m", "1h", "4h", "1d")

func init() {
	adapter.MustRegister(SpotName, func(e adapter.Endpoints) adapter.Adapter { return NewSpot(e) })
	adapter.MustRegister(PerpName, func(e adapter.Endpoints) adapter.Adapter { return NewPerpetual(e) })
}

// Adapter serves one Binance market. Spot and perpetual differ only in
// endpoints and registry name.
type Adapter struct {
	name       string
	klinesPath string
	endpoints  adapter.Endpoints
}

// NewSpot builds the spot-market adapter.
func NewSpot(e adapter.Endpoints) *Adapter {
	return &Adapter{
		name:       SpotName,
		klinesPath: spotKlinesPath,
		endpoints:  e.OrDefault(spotRESTBase, spotWSBase),
	}
}

// NewPerpetual builds the USDT-margined futures adapter.
func NewPerpetual(e adapter.Endpoints) *Adapter {
	return &Adapter{
		name:       PerpName,
		klinesPath: perpKlinesPath,
		endpoints:  e.OrDefault(perpRESTBase, perpWSBase),
	}
}

func (a *Adapter) Exchange() string { return a.name }

func (a *Adapter) FormatPair(p adapter.Pair) string { return p.Join("") }

func (a *Adapter) RESTURL() string { return a.endpoints.REST + a.klinesPath }

func (a *Adapter) WSURL() string { return a.endpoints.WS + wsPath }

func (a *Adapter) Intervals() adapter.IntervalTable { return intervals }

func (a *Adapter) WSIntervals() map[string]struct{} { return wsIntervals }

func (a *Adapter) RESTParams(p adapter.Pair, interval string, opts adapter.FetchOpts) url.Values {
	wire, _ := intervals.Wire(interval)
	params := url.Values{
		"symbol":   {a.FormatPair(p)},
		"interval": {wire},
	}
	if opts.StartSeconds > 0 {
		params.Set("startTime", adapter.UnitMilliseconds.QueryValue(opts.StartSeconds))
	}
	if opts.EndSeconds > 0 {
		params.Set("endTime", adapter.UnitMilliseconds.QueryValue(opts.EndSeconds))
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	return params
}

// ParseREST decodes the klines response, an array of twelve-element
// arrays. Rows that fail to decode are skipped.
func (a *Adapter) ParseREST(payload []byte) ([]candles.Bar, error) {
	if len(payload) == 0 || string(payload) == "null" {
		return nil, nil
	}
	var rows [][]any
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, adapter.ShapeError(a.name, "klines response is not an array of arrays: "+truncate(payload))
	}
	bars := make([]candles.Bar, 0, len(rows))
	for _, row := range rows {
		b, ok := parseKlineRow(row)
		if !ok {
			continue
		}
		bars = append(bars, b)
	}
	if len(bars) == 0 && len(rows) > 0 {
		return nil, adapter.ShapeError(a.name, "no kline row decoded")
	}
	return bars, nil
}

func (a *Adapter) WSSubscribePayload(p adapter.Pair, interval string) (any, string) {
	wire, _ := intervals.Wire(interval)
	stream := strings.ToLower(a.FormatPair(p)) + "@kline_" + wire
	payload := map[string]any{
		"method": "SUBSCRIBE",
		"params": []string{stream},
		"id":     1,
	}
	return payload, stream
}

// ParseWS decodes one stream frame. Anything that is not a kline event
// (subscribe acks, other channels) reports ok false.
func (a *Adapter) ParseWS(frame []byte) ([]candles.Bar, bool) {
	var msg wsKlineEvent
	if err := json.Unmarshal(frame, &msg); err != nil || msg.EventType != "kline" {
		return nil, false
	}
	k := msg.Kline
	open, err1 := candles.ToFloat(k.Open)
	high, err2 := candles.ToFloat(k.High)
	low, err3 := candles.ToFloat(k.Low)
	closePx, err4 := candles.ToFloat(k.Close)
	vol, err5 := candles.ToFloat(k.Volume)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return nil, false
	}
	ts, err := candles.EnsureSeconds(k.OpenTime)
	if err != nil {
		return nil, false
	}
	quoteVol, _ := candles.ToFloat(k.QuoteVolume)
	takerBase, _ := candles.ToFloat(k.TakerBase)
	takerQuote, _ := candles.ToFloat(k.TakerQuote)
	return []candles.Bar{{
		OpenTime:      ts,
		Open:          open,
		High:          high,
		Low:           low,
		Close:         closePx,
		Volume:        vol,
		QuoteVolume:   quoteVol,
		TradeCount:    k.Trades,
		TakerBuyBase:  takerBase,
		TakerBuyQuote: takerQuote,
	}}, true
}

func (a *Adapter) Settings() adapter.Settings {
	return adapter.Settings{
		TimestampUnit:     adapter.UnitMilliseconds,
		KeepAlive:         adapter.KeepAlive{Kind: adapter.KeepAliveNone},
		MaxBarsPerRequest: 1000,
	}
}

// parseKlineRow reads one REST row: open time (ms), open, high, low,
// close, volume, close time, quote volume, trades, taker base, taker
// quote, unused.
func parseKlineRow(row []any) (candles.Bar, bool) {
	if len(row) < 6 {
		return candles.Bar{}, false
	}
	ts, err := candles.EnsureSeconds(row[0])
	if err != nil {
		return candles.Bar{}, false
	}
	var prices [5]float64
	for i := 0; i < 5; i++ {
		v, err := candles.ToFloat(row[i+1])
		if err != nil {
			return candles.Bar{}, false
		}
		prices[i] = v
	}
	b := candles.Bar{
		OpenTime: ts,
		Open:     prices[0],
		High:     prices[1],
		Low:      prices[2],
		Close:    prices[3],
		Volume:   prices[4],
	}
	if len(row) > 7 {
		b.QuoteVolume, _ = candles.ToFloat(row[7])
	}
	if len(row) > 8 {
		b.TradeCount, _ = candles.ToCount(row[8])
	}
	if len(row) > 9 {
		b.TakerBuyBase, _ = candles.ToFloat(row[9])
	}
	if len(row) > 10 {
		b.TakerBuyQuote, _ = candles.ToFloat(row[10])
	}
	return b, true
}

func truncate(b []byte) string {
	const n = 120
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Wire shapes.

type wsKlineEvent struct {
	EventType string  `json:"e"`
	Symbol    string  `json:"s"`
	Kline     wsKline `json:"k"`
}

type wsKline struct {
	OpenTime    int64  `json:"t"`
	CloseTime   int64  `json:"T"`
	Symbol      string `json:"s"`
	Interval    string `json:"i"`
	Open        string `json:"o"`
	Close       string `json:"c"`
	High        string `json:"h"`
	Low         string `json:"l"`
	Volume      string `json:"v"`
	Trades      uint64 `json:"n"`
	Closed      bool   `json:"x"`
	QuoteVolume string `json:"q"`
	TakerBase   string `json:"V"`
	TakerQuote  string `json:"Q"`
}
