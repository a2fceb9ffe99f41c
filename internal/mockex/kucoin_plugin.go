package mockex

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MementoRC/candles-feed/internal/candles"
)

// KuCoinPlugin reproduces the KuCoin spot surface: the 200000 code
// envelope with seven-element string rows newest first, the
// bullet-public token handshake before the WebSocket dial, and
// topic-based subscriptions with id-echoing acks and pongs.
type KuCoinPlugin struct{}

// NewKuCoinPlugin builds the plugin.
func NewKuCoinPlugin() *KuCoinPlugin { return &KuCoinPlugin{} }

// kucoinWire maps canonical intervals to KuCoin type codes.
var kucoinWire = map[string]string{
	"1m": "1min", "3m": "3min", "5m": "5min", "15m": "15min", "30m": "30min",
	"1h": "1hour", "4h": "4hour", "1d": "1day",
}

var kucoinCanonical = func() map[string]string {
	m := make(map[string]string, len(kucoinWire))
	for canonical, wire := range kucoinWire {
		m[wire] = canonical
	}
	return m
}()

func (p *KuCoinPlugin) Name() string { return "kucoin" }

func (p *KuCoinPlugin) RESTRoutes() []Route {
	return []Route{
		{Method: "GET", Path: "/api/v1/market/candles", Handler: "candles"},
		{Method: "POST", Path: "/api/v1/bullet-public", Handler: "bullet"},
	}
}

func (p *KuCoinPlugin) WSPath() string { return "/kucoin-ws" }

func (p *KuCoinPlugin) ParseCandleQuery(params url.Values) (CandleQuery, error) {
	q := CandleQuery{
		Symbol:   params.Get("symbol"),
		Interval: kucoinCanonical[params.Get("type")],
	}
	if q.Symbol == "" || q.Interval == "" {
		return q, fmt.Errorf("symbol and type are required")
	}
	for _, f := range []struct {
		name string
		dst  *int64
	}{{"startAt", &q.Start}, {"endAt", &q.End}} {
		if v := params.Get(f.name); v != "" {
			ts, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return q, fmt.Errorf("bad %s %q", f.name, v)
			}
			*f.dst = ts
		}
	}
	return q, nil
}

func (p *KuCoinPlugin) FormatRESTCandles(_ CandleQuery, bars []candles.Bar) any {
	rows := make([][]string, 0, len(bars))
	for i := len(bars) - 1; i >= 0; i-- {
		rows = append(rows, kucoinRow(bars[i]))
	}
	return map[string]any{"code": "200000", "data": rows}
}

func (p *KuCoinPlugin) FormatWSCandle(sub Subscription, bar candles.Bar) any {
	topic := "/market/candles:" + sub.Pair + "_" + kucoinWire[sub.Interval]
	return map[string]any{
		"type":    "message",
		"topic":   topic,
		"subject": "trade.candles.update",
		"data": map[string]any{
			"symbol":  sub.Pair,
			"candles": kucoinRow(bar),
			"time":    time.Now().UnixNano(),
		},
	}
}

func (p *KuCoinPlugin) ParseSubscription(frame []byte) (string, []SubRequest, any, bool) {
	var msg struct {
		ID    any    `json:"id"`
		Type  string `json:"type"`
		Topic string `json:"topic"`
	}
	if err := json.Unmarshal(frame, &msg); err != nil {
		return "", nil, nil, false
	}
	if msg.Type != "subscribe" && msg.Type != "unsubscribe" {
		return "", nil, nil, false
	}
	rest, ok := strings.CutPrefix(msg.Topic, "/market/candles:")
	if !ok {
		return "", nil, nil, false
	}
	symbol, wire, ok := strings.Cut(rest, "_")
	if !ok {
		return "", nil, nil, false
	}
	return msg.Type, []SubRequest{{Symbol: symbol, Interval: kucoinCanonical[wire]}}, msg.ID, true
}

func (p *KuCoinPlugin) AckFrame(_ string, _ []SubRequest, id any) any {
	return map[string]any{"id": id, "type": "ack"}
}

func (p *KuCoinPlugin) ControlReply(frame []byte) (any, bool) {
	var msg struct {
		ID   any    `json:"id"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(frame, &msg); err != nil || msg.Type != "ping" {
		return nil, false
	}
	return map[string]any{"id": msg.ID, "type": "pong"}, true
}

func (p *KuCoinPlugin) SubscriptionKey(sub Subscription) string {
	return "/market/candles:" + sub.Pair + "_" + kucoinWire[sub.Interval]
}

func (p *KuCoinPlugin) ErrorBody(status int, msg string) any {
	return map[string]any{"code": strconv.Itoa(status) + "000", "msg": msg}
}

func (p *KuCoinPlugin) Overrides() Overrides { return Overrides{} }

// kucoinRow renders the seven-element wire row: time (s), open, close,
// high, low, volume, turnover.
func kucoinRow(b candles.Bar) []string {
	return []string{
		strconv.FormatInt(b.OpenTime, 10),
		fmtF(b.Open), fmtF(b.Close), fmtF(b.High), fmtF(b.Low),
		fmtF(b.Volume), fmtF(b.QuoteVolume),
	}
}
