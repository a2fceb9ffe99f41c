// Package kucoin adapts the KuCoin spot market. KuCoin gates its
// WebSocket behind a token handshake: a REST call to the bullet-public
// endpoint yields the server list and a connect token, and the dial
// URL is assembled from both. Candle rows are positional string arrays
// in Unix seconds, newest first.
package kucoin

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/MementoRC/candles-feed/internal/adapter"
	"github.com/MementoRC/candles-feed/internal/candles"
)

const (
	Name = "kucoin"

	defaultRESTBase = "https://api.kucoin.com"
	defaultWSBase   = "wss://ws-api-spot.kucoin.com"

	candlesPath = "/api/v1/market/candles"
	bulletPath  = "/api/v1/bullet-public"
)

var intervals = adapter.IntervalTable{
	"1m":  {Seconds: 60, Wire: "1min"},
	"3m":  {Seconds: 180, Wire: "3min"},
	"5m":  {Seconds: 300, Wire: "5min"},
	"15m": {Seconds: 900, Wire: "15min"},
	"30m": {Seconds: 1800, Wire: "30min"},
	"1h":  {Seconds: 3600, Wire: "1hour"},
	"4h":  {Seconds: 14400, Wire: "4hour"},
	"1d":  {Seconds: 86400, Wire: "1day"},
}

var wsIntervals = adapter.WSSet("1m", "3m", "5m", "15m", "30m", "1h", "4h", "1d")

func init() {
	adapter.MustRegister(Name, func(e adapter.Endpoints) adapter.Adapter { return New(e) })
}

// Adapter serves the KuCoin spot market.
type Adapter struct {
	endpoints adapter.Endpoints
}

// New builds the spot-market adapter.
func New(e adapter.Endpoints) *Adapter {
	return &Adapter{endpoints: e.OrDefault(defaultRESTBase, defaultWSBase)}
}

func (a *Adapter) Exchange() string { return Name }

// FormatPair keeps the canonical dash form ("BTC-USDT").
func (a *Adapter) FormatPair(p adapter.Pair) string { return p.Join("-") }

func (a *Adapter) RESTURL() string { return a.endpoints.REST + candlesPath }

// WSURL returns the default stream host; the dial URL actually used
// comes from the handshake in ConnectPrep.
func (a *Adapter) WSURL() string { return a.endpoints.WS }

func (a *Adapter) Intervals() adapter.IntervalTable { return intervals }

func (a *Adapter) WSIntervals() map[string]struct{} { return wsIntervals }

func (a *Adapter) RESTParams(p adapter.Pair, interval string, opts adapter.FetchOpts) url.Values {
	wire, _ := intervals.Wire(interval)
	params := url.Values{
		"symbol": {a.FormatPair(p)},
		"type":   {wire},
	}
	if opts.StartSeconds > 0 {
		params.Set("startAt", strconv.FormatInt(opts.StartSeconds, 10))
	}
	if opts.EndSeconds > 0 {
		params.Set("endAt", strconv.FormatInt(opts.EndSeconds, 10))
	}
	return params
}

// ParseREST decodes the candles envelope. A non-success code is an
// in-band protocol error; rows arrive newest first and come back
// ascending.
func (a *Adapter) ParseREST(payload []byte) ([]candles.Bar, error) {
	if len(payload) == 0 || string(payload) == "null" {
		return nil, nil
	}
	var resp restResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, adapter.ShapeError(Name, "candles response is not a KuCoin envelope")
	}
	if resp.Code != "" && resp.Code != "200000" {
		return nil, &adapter.Error{
			Exchange: Name,
			Kind:     adapter.KindProtocol,
			Message:  "code " + resp.Code + ": " + resp.Msg,
		}
	}
	bars := make([]candles.Bar, 0, len(resp.Data))
	for i := len(resp.Data) - 1; i >= 0; i-- {
		b, ok := parseCandleRow(resp.Data[i])
		if !ok {
			continue
		}
		bars = append(bars, b)
	}
	if len(bars) == 0 && len(resp.Data) > 0 {
		return nil, adapter.ShapeError(Name, "no candle row decoded")
	}
	return bars, nil
}

func (a *Adapter) WSSubscribePayload(p adapter.Pair, interval string) (any, string) {
	wire, _ := intervals.Wire(interval)
	topic := "/market/candles:" + a.FormatPair(p) + "_" + wire
	payload := map[string]any{
		"id":             uuid.NewString(),
		"type":           "subscribe",
		"topic":          topic,
		"privateChannel": false,
		"response":       true,
	}
	return payload, topic
}

// ParseWS decodes one message. Welcome, ack and pong frames report ok
// false; only candle topics carry bars.
func (a *Adapter) ParseWS(frame []byte) ([]candles.Bar, bool) {
	var msg wsMessage
	if err := json.Unmarshal(frame, &msg); err != nil || msg.Type != "message" {
		return nil, false
	}
	if msg.Data.Candles == nil {
		return nil, false
	}
	row := make([]any, len(msg.Data.Candles))
	for i, v := range msg.Data.Candles {
		row[i] = v
	}
	b, ok := parseCandleRowAny(row)
	if !ok {
		return nil, false
	}
	return []candles.Bar{b}, true
}

func (a *Adapter) Settings() adapter.Settings {
	return adapter.Settings{
		TimestampUnit: adapter.UnitSeconds,
		KeepAlive: adapter.KeepAlive{
			Kind:     adapter.KeepAliveText,
			Interval: 18 * time.Second,
			Payload:  `{"id":"keepalive","type":"ping"}`,
		},
		MaxBarsPerRequest: 1500,
		ConnectPrep:       a.connectPrep,
	}
}

// connectPrep performs the bullet-public handshake and assembles the
// dial URL from the advertised endpoint and token.
func (a *Adapter) connectPrep(ctx context.Context, rest adapter.RESTClient) (string, error) {
	body, err := rest.PostJSON(ctx, a.endpoints.REST+bulletPath, nil)
	if err != nil {
		return "", err
	}
	var resp bulletResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", adapter.ShapeError(Name, "bullet-public response is not a KuCoin envelope")
	}
	if resp.Code != "200000" || resp.Data.Token == "" || len(resp.Data.InstanceServers) == 0 {
		return "", adapter.ShapeError(Name, "bullet-public handshake missing token or servers")
	}
	endpoint := resp.Data.InstanceServers[0].Endpoint
	return endpoint + "?token=" + url.QueryEscape(resp.Data.Token) + "&connectId=" + uuid.NewString(), nil
}

// parseCandleRow reads one REST row: time (s), open, close, high, low,
// base volume, quote turnover.
func parseCandleRow(row []string) (candles.Bar, bool) {
	anyRow := make([]any, len(row))
	for i, v := range row {
		anyRow[i] = v
	}
	return parseCandleRowAny(anyRow)
}

func parseCandleRowAny(row []any) (candles.Bar, bool) {
	if len(row) < 6 {
		return candles.Bar{}, false
	}
	ts, err := candles.EnsureSeconds(row[0])
	if err != nil {
		return candles.Bar{}, false
	}
	open, err1 := candles.ToFloat(row[1])
	closePx, err2 := candles.ToFloat(row[2])
	high, err3 := candles.ToFloat(row[3])
	low, err4 := candles.ToFloat(row[4])
	vol, err5 := candles.ToFloat(row[5])
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
	if len(row) > 6 {
		b.QuoteVolume, _ = candles.ToFloat(row[6])
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
	Type    string `json:"type"`
	Topic   string `json:"topic"`
	Subject string `json:"subject"`
	Data    struct {
		Symbol  string   `json:"symbol"`
		Candles []string `json:"candles"`
		Time    int64    `json:"time"`
	} `json:"data"`
}

type bulletResponse struct {
	Code string `json:"code"`
	Data struct {
		Token           string `json:"token"`
		InstanceServers []struct {
			Endpoint     string `json:"endpoint"`
			PingInterval int64  `json:"pingInterval"`
			Protocol     string `json:"protocol"`
		} `json:"instanceServers"`
	} `json:"data"`
}
