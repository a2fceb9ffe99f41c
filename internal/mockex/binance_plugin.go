package mockex

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/MementoRC/candles-feed/internal/candles"
)

// BinancePlugin reproduces the Binance spot market-data surface:
// twelve-element kline arrays over REST, kline event objects on the
// combined stream, SUBSCRIBE/UNSUBSCRIBE frames with integer ids.
type BinancePlugin struct{}

// NewBinancePlugin builds the plugin.
func NewBinancePlugin() *BinancePlugin { return &BinancePlugin{} }

func (p *BinancePlugin) Name() string { return "binance" }

func (p *BinancePlugin) RESTRoutes() []Route {
	return []Route{
		{Method: "GET", Path: "/api/v3/klines", Handler: "candles"},
		{Method: "GET", Path: "/api/v3/ping", Handler: "ping"},
		{Method: "GET", Path: "/api/v3/time", Handler: "time"},
	}
}

func (p *BinancePlugin) WSPath() string { return "/ws" }

func (p *BinancePlugin) ParseCandleQuery(params url.Values) (CandleQuery, error) {
	q := CandleQuery{
		Symbol:   params.Get("symbol"),
		Interval: params.Get("interval"),
	}
	if q.Symbol == "" || q.Interval == "" {
		return q, fmt.Errorf("symbol and interval are required")
	}
	if v := params.Get("startTime"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return q, fmt.Errorf("bad startTime %q", v)
		}
		q.Start = ms / 1000
	}
	if v := params.Get("endTime"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return q, fmt.Errorf("bad endTime %q", v)
		}
		q.End = ms / 1000
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

func (p *BinancePlugin) FormatRESTCandles(q CandleQuery, bars []candles.Bar) any {
	secs := intervalSeconds[q.Interval]
	if secs == 0 {
		secs = 60
	}
	rows := make([][]any, 0, len(bars))
	for _, b := range bars {
		rows = append(rows, []any{
			b.OpenTime * 1000,
			fmtF(b.Open), fmtF(b.High), fmtF(b.Low), fmtF(b.Close), fmtF(b.Volume),
			(b.OpenTime+secs)*1000 - 1,
			fmtF(b.QuoteVolume),
			b.TradeCount,
			fmtF(b.TakerBuyBase), fmtF(b.TakerBuyQuote),
			"0",
		})
	}
	return rows
}

func (p *BinancePlugin) FormatWSCandle(sub Subscription, bar candles.Bar) any {
	symbol := strings.ReplaceAll(sub.Pair, "-", "")
	secs := intervalSeconds[sub.Interval]
	if secs == 0 {
		secs = 60
	}
	return map[string]any{
		"e": "kline",
		"E": bar.OpenTime*1000 + 500,
		"s": symbol,
		"k": map[string]any{
			"t": bar.OpenTime * 1000,
			"T": (bar.OpenTime+secs)*1000 - 1,
			"s": symbol,
			"i": sub.Interval,
			"o": fmtF(bar.Open),
			"c": fmtF(bar.Close),
			"h": fmtF(bar.High),
			"l": fmtF(bar.Low),
			"v": fmtF(bar.Volume),
			"n": bar.TradeCount,
			"x": false,
			"q": fmtF(bar.QuoteVolume),
			"V": fmtF(bar.TakerBuyBase),
			"Q": fmtF(bar.TakerBuyQuote),
		},
	}
}

func (p *BinancePlugin) ParseSubscription(frame []byte) (string, []SubRequest, any, bool) {
	var msg struct {
		Method string   `json:"method"`
		Params []string `json:"params"`
		ID     any      `json:"id"`
	}
	if err := json.Unmarshal(frame, &msg); err != nil {
		return "", nil, nil, false
	}
	var op string
	switch msg.Method {
	case "SUBSCRIBE":
		op = "subscribe"
	case "UNSUBSCRIBE":
		op = "unsubscribe"
	default:
		return "", nil, nil, false
	}
	subs := make([]SubRequest, 0, len(msg.Params))
	for _, stream := range msg.Params {
		symbol, interval, ok := strings.Cut(stream, "@kline_")
		if !ok {
			continue
		}
		subs = append(subs, SubRequest{Symbol: symbol, Interval: interval})
	}
	return op, subs, msg.ID, true
}

func (p *BinancePlugin) AckFrame(_ string, _ []SubRequest, id any) any {
	return map[string]any{"result": nil, "id": id}
}

// ControlReply: Binance keeps the socket alive with protocol pings
// from the server side; clients send no text keep-alives.
func (p *BinancePlugin) ControlReply([]byte) (any, bool) { return nil, false }

func (p *BinancePlugin) SubscriptionKey(sub Subscription) string {
	return strings.ToLower(strings.ReplaceAll(sub.Pair, "-", "")) + "@kline_" + sub.Interval
}

func (p *BinancePlugin) ErrorBody(status int, msg string) any {
	return map[string]any{"code": -1000 - status, "msg": msg}
}

func (p *BinancePlugin) Overrides() Overrides {
	return Overrides{RateLimitPerMinute: 6000, CandleWeight: 2}
}

func fmtF(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
