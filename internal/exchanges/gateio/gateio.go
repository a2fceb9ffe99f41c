// Package gateio adapts Gate.io spot and USDT-settled perpetual
// markets. The two markets genuinely diverge on the wire: spot candles
// are positional arrays with the quote volume leading, futures candles
// are objects; both work in Unix seconds.
package gateio

import (
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/MementoRC/candles-feed/internal/adapter"
	"github.com/MementoRC/candles-feed/internal/candles"
)

const (
	SpotName = "gate_io"
	PerpName = "gate_io_perpetual"

	defaultRESTBase = "https://api.gateio.ws"
	spotWSBase      = "wss://api.gateio.ws"
	perpWSBase      = "wss://fx-ws.gateio.ws"

	spotCandlesPath = "/api/v4/spot/candlesticks"
	perpCandlesPath = "/api/v4/futures/usdt/candlesticks"
	spotWSPath      = "/ws/v4/"
	perpWSPath      = "/v4/ws/usdt"

	spotChannel = "spot.candlesticks"
	perpChannel = "futures.candlesticks"
)

var intervals = adapter.IntervalTable{
	"1m":  {Seconds: 60, Wire: "1m"},
	"5m":  {Seconds: 300, Wire: "5m"},
	"15m": {Seconds: 900, Wire: "15m"},
	"30m": {Seconds: 1800, Wire: "30m"},
	"1h":  {Seconds: 3600, Wire: "1h"},
	"4h":  {Seconds: 14400, Wire: "4h"},
	"8h":  {Seconds: 28800, Wire: "8h"},
	"1d":  {Seconds: 86400, Wire: "1d"},
}

var wsIntervals = adapter.WSSet("1m", "5m", "15m", "30m", "1h", "4h", "8h", "1d")

func init() {
	adapter.MustRegister(SpotName, func(e adapter.Endpoints) adapter.Adapter { return NewSpot(e) })
	adapter.MustRegister(PerpName, func(e adapter.Endpoints) adapter.Adapter { return NewPerpetual(e) })
}

// Adapter serves one Gate.io market.
type Adapter struct {
	name        string
	perp        bool
	candlesPath string
	wsPath      string
	channel     string
	endpoints   adapter.Endpoints
}

// NewSpot builds the spot-market adapter.
func NewSpot(e adapter.Endpoints) *Adapter {
	return &Adapter{
		name:        SpotName,
		candlesPath: spotCandlesPath,
		wsPath:      spotWSPath,
		channel:     spotChannel,
		endpoints:   e.OrDefault(defaultRESTBase, spotWSBase),
	}
}

// NewPerpetual builds the USDT-settled futures adapter.
func NewPerpetual(e adapter.Endpoints) *Adapter {
	return &Adapter{
		name:        PerpName,
		perp:        true,
		candlesPath: perpCandlesPath,
		wsPath:      perpWSPath,
		channel:     perpChannel,
		endpoints:   e.OrDefault(defaultRESTBase, perpWSBase),
	}
}

func (a *Adapter) Exchange() string { return a.name }

// FormatPair renders the underscore form ("BTC_USDT").
func (a *Adapter) FormatPair(p adapter.Pair) string { return p.Join("_") }

func (a *Adapter) RESTURL() string { return a.endpoints.REST + a.candlesPath }

func (a *Adapter) WSURL() string { return a.endpoints.WS + a.wsPath }

func (a *Adapter) Intervals() adapter.IntervalTable { return intervals }

func (a *Adapter) WSIntervals() map[string]struct{} { return wsIntervals }

func (a *Adapter) RESTParams(p adapter.Pair, interval string, opts adapter.FetchOpts) url.Values {
	wire, _ := intervals.Wire(interval)
	symbolKey := "currency_pair"
	if a.perp {
		symbolKey = "contract"
	}
	params := url.Values{
		symbolKey:  {a.FormatPair(p)},
		"interval": {wire},
	}
	if opts.StartSeconds > 0 {
		params.Set("from", strconv.FormatInt(opts.StartSeconds, 10))
	}
	if opts.EndSeconds > 0 {
		params.Set("to", strconv.FormatInt(opts.EndSeconds, 10))
	}
	// from/to and limit are mutually exclusive on this venue.
	if opts.Limit > 0 && opts.StartSeconds == 0 && opts.EndSeconds == 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	return params
}

// ParseREST decodes the candlesticks response: positional arrays for
// spot, objects for futures.
func (a *Adapter) ParseREST(payload []byte) ([]candles.Bar, error) {
	if len(payload) == 0 || string(payload) == "null" {
		return nil, nil
	}
	if a.perp {
		return a.parsePerpREST(payload)
	}
	return a.parseSpotREST(payload)
}

// parseSpotREST reads rows of [t, quote volume, close, high, low,
// open, base volume, closed].
func (a *Adapter) parseSpotREST(payload []byte) ([]candles.Bar, error) {
	var rows [][]any
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, adapter.ShapeError(a.name, "candlesticks response is not an array of arrays")
	}
	bars := make([]candles.Bar, 0, len(rows))
	for _, row := range rows {
		b, ok := parseSpotRow(row)
		if !ok {
			continue
		}
		bars = append(bars, b)
	}
	if len(bars) == 0 && len(rows) > 0 {
		return nil, adapter.ShapeError(a.name, "no candlestick row decoded")
	}
	return bars, nil
}

func (a *Adapter) parsePerpREST(payload []byte) ([]candles.Bar, error) {
	var rows []perpCandle
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, adapter.ShapeError(a.name, "candlesticks response is not an array of objects")
	}
	bars := make([]candles.Bar, 0, len(rows))
	for _, row := range rows {
		b, ok := parsePerpCandle(row)
		if !ok {
			continue
		}
		bars = append(bars, b)
	}
	if len(bars) == 0 && len(rows) > 0 {
		return nil, adapter.ShapeError(a.name, "no candlestick object decoded")
	}
	return bars, nil
}

func (a *Adapter) WSSubscribePayload(p adapter.Pair, interval string) (any, string) {
	wire, _ := intervals.Wire(interval)
	symbol := a.FormatPair(p)
	payload := map[string]any{
		"time":    time.Now().Unix(),
		"channel": a.channel,
		"event":   "subscribe",
		"payload": []string{wire, symbol},
	}
	return payload, wire + "_" + symbol
}

// ParseWS decodes one update frame. Subscribe confirmations and pongs
// report ok false. The candle's n field prefixes the interval onto the
// symbol; it is left to the store to route since a strategy owns one
// subscription.
func (a *Adapter) ParseWS(frame []byte) ([]candles.Bar, bool) {
	var msg wsMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		return nil, false
	}
	if msg.Channel != a.channel || msg.Event != "update" || len(msg.Result) == 0 {
		return nil, false
	}
	// Spot updates carry one candle object, futures a list.
	var objs []wsCandle
	if msg.Result[0] == '[' {
		if err := json.Unmarshal(msg.Result, &objs); err != nil {
			return nil, false
		}
	} else {
		var one wsCandle
		if err := json.Unmarshal(msg.Result, &one); err != nil {
			return nil, false
		}
		objs = []wsCandle{one}
	}
	bars := make([]candles.Bar, 0, len(objs))
	for _, c := range objs {
		b, ok := parseWSCandle(c)
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
	pingChannel := "spot.ping"
	if a.perp {
		pingChannel = "futures.ping"
	}
	return adapter.Settings{
		TimestampUnit: adapter.UnitSeconds,
		KeepAlive: adapter.KeepAlive{
			Kind:     adapter.KeepAliveText,
			Interval: 15 * time.Second,
			Payload:  `{"channel":"` + pingChannel + `"}`,
		},
		MaxBarsPerRequest: 1000,
	}
}

func parseSpotRow(row []any) (candles.Bar, bool) {
	if len(row) < 7 {
		return candles.Bar{}, false
	}
	ts, err := candles.EnsureSeconds(row[0])
	if err != nil {
		return candles.Bar{}, false
	}
	quoteVol, err1 := candles.ToFloat(row[1])
	closePx, err2 := candles.ToFloat(row[2])
	high, err3 := candles.ToFloat(row[3])
	low, err4 := candles.ToFloat(row[4])
	open, err5 := candles.ToFloat(row[5])
	vol, err6 := candles.ToFloat(row[6])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil || err6 != nil {
		return candles.Bar{}, false
	}
	return candles.Bar{
		OpenTime:    ts,
		Open:        open,
		High:        high,
		Low:         low,
		Close:       closePx,
		Volume:      vol,
		QuoteVolume: quoteVol,
	}, true
}

func parsePerpCandle(c perpCandle) (candles.Bar, bool) {
	open, err1 := candles.ToFloat(c.Open)
	high, err2 := candles.ToFloat(c.High)
	low, err3 := candles.ToFloat(c.Low)
	closePx, err4 := candles.ToFloat(c.Close)
	if c.Time <= 0 || err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return candles.Bar{}, false
	}
	b := candles.Bar{
		OpenTime: c.Time,
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closePx,
		Volume:   float64(c.Volume),
	}
	b.QuoteVolume, _ = candles.ToFloat(c.Sum)
	return b, true
}

func parseWSCandle(c wsCandle) (candles.Bar, bool) {
	ts, err := candles.EnsureSeconds(c.Time)
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
	b := candles.Bar{
		OpenTime: ts,
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closePx,
		Volume:   vol,
	}
	b.QuoteVolume, _ = candles.ToFloat(c.Amount)
	return b, true
}

// Wire shapes.

type perpCandle struct {
	Time   int64  `json:"t"`
	Volume int64  `json:"v"`
	Close  string `json:"c"`
	High   string `json:"h"`
	Low    string `json:"l"`
	Open   string `json:"o"`
	Sum    string `json:"sum"`
}

type wsMessage struct {
	Time    int64           `json:"time"`
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Result  json.RawMessage `json:"result"`
}

type wsCandle struct {
	Time   json.Number `json:"t"`
	Volume json.Number `json:"v"`
	Close  string      `json:"c"`
	High   string      `json:"h"`
	Low    string      `json:"l"`
	Open   string      `json:"o"`
	Amount string      `json:"a"`
	Name   string      `json:"n"`
}
