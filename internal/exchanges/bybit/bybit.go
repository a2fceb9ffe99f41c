// Package bybit adapts Bybit v5 spot and linear-perpetual markets.
// One REST surface serves both, split by the category query; candle
// lists arrive newest first and carry no trade counts.
package bybit

import (
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/MementoRC/candles-feed/internal/adapter"
	"github.com/MementoRC/candles-feed/internal/candles"
)

const (
	SpotName = "bybit"
	PerpName = "bybit_perpetual"

	defaultRESTBase = "https://api.bybit.com"
	defaultWSBase   = "wss://stream.bybit.com"

	klinePath  = "/v5/market/kline"
	spotWSPath = "/v5/public/spot"
	perpWSPath = "/v5/public/linear"
)

var intervals = adapter.IntervalTable{
	"1m":  {Seconds: 60, Wire: "1"},
	"3m":  {Seconds: 180, Wire: "3"},
	"5m":  {Seconds: 300, Wire: "5"},
	"15m": {Seconds: 900, Wire: "15"},
	"30m": {Seconds: 1800, Wire: "30"},
	"1h":  {Seconds: 3600, Wire: "60"},
	"4h":  {Seconds: 14400, Wire: "240"},
	"1d":  {Seconds: 86400, Wire: "D"},
}

var wsIntervals = adapter.WSSet("1m", "3m", "5m", "15m", "30m", "1h", "4h", "1d")

func init() {
	adapter.MustRegister(SpotName, func(e adapter.Endpoints) adapter.Adapter { return NewSpot(e) })
	adapter.MustRegister(PerpName, func(e adapter.Endpoints) adapter.Adapter { return NewPerpetual(e) })
}

// Adapter serves one Bybit market category.
type Adapter struct {
	name      string
	category  string
	wsPath    string
	endpoints adapter.Endpoints
}

// NewSpot builds the spot-market adapter.
func NewSpot(e adapter.Endpoints) *Adapter {
	return &Adapter{
		name:      SpotName,
		category:  "spot",
		wsPath:    spotWSPath,
		endpoints: e.OrDefault(defaultRESTBase, defaultWSBase),
	}
}

// NewPerpetual builds the USDT linear-perpetual adapter.
func NewPerpetual(e adapter.Endpoints) *Adapter {
	return &Adapter{
		name:      PerpName,
		category:  "linear",
		wsPath:    perpWSPath,
		endpoints: e.OrDefault(defaultRESTBase, defaultWSBase),
	}
}

func (a *Adapter) Exchange() string { return a.name }

func (a *Adapter) FormatPair(p adapter.Pair) string { return p.Join("") }

func (a *Adapter) RESTURL() string { return a.endpoints.REST + klinePath }

func (a *Adapter) WSURL() string { return a.endpoints.WS + a.wsPath }

func (a *Adapter) Intervals() adapter.IntervalTable { return intervals }

func (a *Adapter) WSIntervals() map[string]struct{} { return wsIntervals }

func (a *Adapter) RESTParams(p adapter.Pair, interval string, opts adapter.FetchOpts) url.Values {
	wire, _ := intervals.Wire(interval)
	params := url.Values{
		"category": {a.category},
		"symbol":   {a.FormatPair(p)},
		"interval": {wire},
	}
	if opts.StartSeconds > 0 {
		params.Set("start", adapter.UnitMilliseconds.QueryValue(opts.StartSeconds))
	}
	if opts.EndSeconds > 0 {
		params.Set("end", adapter.UnitMilliseconds.QueryValue(opts.EndSeconds))
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	return params
}

// ParseREST decodes the kline envelope. Bybit reports errors in-band
// through retCode, and lists rows newest first; rows come back in
// ascending order.
func (a *Adapter) ParseREST(payload []byte) ([]candles.Bar, error) {
	if len(payload) == 0 || string(payload) == "null" {
		return nil, nil
	}
	var resp restResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, adapter.ShapeError(a.name, "kline response is not a v5 envelope")
	}
	if resp.RetCode != 0 {
		return nil, &adapter.Error{
			Exchange: a.name,
			Kind:     adapter.KindProtocol,
			Message:  "retCode " + strconv.Itoa(resp.RetCode) + ": " + resp.RetMsg,
		}
	}
	bars := make([]candles.Bar, 0, len(resp.Result.List))
	for i := len(resp.Result.List) - 1; i >= 0; i-- {
		b, ok := parseRow(resp.Result.List[i])
		if !ok {
			continue
		}
		bars = append(bars, b)
	}
	if len(bars) == 0 && len(resp.Result.List) > 0 {
		return nil, adapter.ShapeError(a.name, "no kline row decoded")
	}
	return bars, nil
}

func (a *Adapter) WSSubscribePayload(p adapter.Pair, interval string) (any, string) {
	wire, _ := intervals.Wire(interval)
	topic := "kline." + wire + "." + a.FormatPair(p)
	payload := map[string]any{
		"op":   "subscribe",
		"args": []string{topic},
	}
	return payload, topic
}

// ParseWS decodes one public-stream frame. Subscription acks and pong
// responses report ok false.
func (a *Adapter) ParseWS(frame []byte) ([]candles.Bar, bool) {
	var msg wsMessage
	if err := json.Unmarshal(frame, &msg); err != nil || len(msg.Topic) < 6 || msg.Topic[:6] != "kline." {
		return nil, false
	}
	bars := make([]candles.Bar, 0, len(msg.Data))
	for _, k := range msg.Data {
		ts, err := candles.EnsureSeconds(k.Start)
		if err != nil {
			continue
		}
		open, err1 := candles.ToFloat(k.Open)
		high, err2 := candles.ToFloat(k.High)
		low, err3 := candles.ToFloat(k.Low)
		closePx, err4 := candles.ToFloat(k.Close)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}
		vol, _ := candles.ToFloat(k.Volume)
		quote, _ := candles.ToFloat(k.Turnover)
		bars = append(bars, candles.Bar{
			OpenTime:    ts,
			Open:        open,
			High:        high,
			Low:         low,
			Close:       closePx,
			Volume:      vol,
			QuoteVolume: quote,
		})
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
			Interval: 20 * time.Second,
			Payload:  `{"op":"ping"}`,
		},
		MaxBarsPerRequest: 1000,
	}
}

// parseRow reads one REST row: start (ms string), open, high, low,
// close, volume, turnover.
func parseRow(row []string) (candles.Bar, bool) {
	if len(row) < 7 {
		return candles.Bar{}, false
	}
	ts, err := candles.EnsureSeconds(row[0])
	if err != nil {
		return candles.Bar{}, false
	}
	var vals [6]float64
	for i := 0; i < 6; i++ {
		v, err := candles.ToFloat(row[i+1])
		if err != nil {
			return candles.Bar{}, false
		}
		vals[i] = v
	}
	return candles.Bar{
		OpenTime:    ts,
		Open:        vals[0],
		High:        vals[1],
		Low:         vals[2],
		Close:       vals[3],
		Volume:      vals[4],
		QuoteVolume: vals[5],
	}, true
}

// Wire shapes.

type restResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		Category string     `json:"category"`
		Symbol   string     `json:"symbol"`
		List     [][]string `json:"list"`
	} `json:"result"`
}

type wsMessage struct {
	Topic string    `json:"topic"`
	Type  string    `json:"type"`
	Data  []wsKline `json:"data"`
}

type wsKline struct {
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
	Interval string `json:"interval"`
	Open     string `json:"open"`
	Close    string `json:"close"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Volume   string `json:"volume"`
	Turnover string `json:"turnover"`
	Confirm  bool   `json:"confirm"`
}
