package mockex

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/MementoRC/candles-feed/internal/candles"
)

// OKXPlugin reproduces the OKX market-data surface: the code/msg/data
// envelope with nine-element string rows listed newest first, channel
// subscriptions on the business socket, and bare-text ping/pong.
type OKXPlugin struct{}

// NewOKXPlugin builds the plugin.
func NewOKXPlugin() *OKXPlugin { return &OKXPlugin{} }

// okxWire maps canonical intervals to OKX bar codes. Hours and days
// are uppercase on the wire.
var okxWire = map[string]string{
	"1m": "1m", "3m": "3m", "5m": "5m", "15m": "15m", "30m": "30m",
	"1h": "1H", "4h": "4H", "1d": "1D",
}

func (p *OKXPlugin) Name() string { return "okx" }

func (p *OKXPlugin) RESTRoutes() []Route {
	return []Route{
		{Method: "GET", Path: "/api/v5/market/candles", Handler: "candles"},
	}
}

func (p *OKXPlugin) WSPath() string { return "/ws/v5/business" }

// ParseCandleQuery inverts the pagination cursors: "before" excludes
// at-or-older, "after" excludes at-or-newer, so the inclusive range
// sits one millisecond inside each bound.
func (p *OKXPlugin) ParseCandleQuery(params url.Values) (CandleQuery, error) {
	q := CandleQuery{
		Symbol:   strings.TrimSuffix(params.Get("instId"), "-SWAP"),
		Interval: strings.ToLower(params.Get("bar")),
	}
	if q.Symbol == "" || q.Interval == "" {
		return q, fmt.Errorf("instId and bar are required")
	}
	if v := params.Get("before"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return q, fmt.Errorf("bad before %q", v)
		}
		q.Start = (ms + 1) / 1000
	}
	if v := params.Get("after"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return q, fmt.Errorf("bad after %q", v)
		}
		q.End = (ms - 1) / 1000
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

func (p *OKXPlugin) FormatRESTCandles(_ CandleQuery, bars []candles.Bar) any {
	rows := make([][]string, 0, len(bars))
	for i := len(bars) - 1; i >= 0; i-- {
		rows = append(rows, okxRow(bars[i]))
	}
	return map[string]any{"code": "0", "msg": "", "data": rows}
}

func (p *OKXPlugin) FormatWSCandle(sub Subscription, bar candles.Bar) any {
	return map[string]any{
		"arg": map[string]string{
			"channel": "candle" + okxWire[sub.Interval],
			"instId":  sub.Pair,
		},
		"data": [][]string{okxRow(bar)},
	}
}

func (p *OKXPlugin) ParseSubscription(frame []byte) (string, []SubRequest, any, bool) {
	var msg struct {
		Op   string `json:"op"`
		Args []struct {
			Channel string `json:"channel"`
			InstID  string `json:"instId"`
		} `json:"args"`
	}
	if err := json.Unmarshal(frame, &msg); err != nil {
		return "", nil, nil, false
	}
	if msg.Op != "subscribe" && msg.Op != "unsubscribe" {
		return "", nil, nil, false
	}
	subs := make([]SubRequest, 0, len(msg.Args))
	for _, arg := range msg.Args {
		wire, ok := strings.CutPrefix(arg.Channel, "candle")
		if !ok {
			continue
		}
		subs = append(subs, SubRequest{
			Symbol:   strings.TrimSuffix(arg.InstID, "-SWAP"),
			Interval: strings.ToLower(wire),
		})
	}
	return msg.Op, subs, nil, true
}

func (p *OKXPlugin) AckFrame(op string, subs []SubRequest, _ any) any {
	if len(subs) == 0 {
		return nil
	}
	return map[string]any{
		"event": op,
		"arg": map[string]string{
			"channel": "candle" + okxWire[subs[0].Interval],
			"instId":  subs[0].Symbol,
		},
	}
}

func (p *OKXPlugin) ControlReply(frame []byte) (any, bool) {
	if string(frame) == "ping" {
		return TextFrame("pong"), true
	}
	return nil, false
}

func (p *OKXPlugin) SubscriptionKey(sub Subscription) string {
	return "candle" + okxWire[sub.Interval] + ":" + sub.Pair
}

func (p *OKXPlugin) ErrorBody(status int, msg string) any {
	return map[string]any{"code": strconv.Itoa(status), "msg": msg, "data": []any{}}
}

func (p *OKXPlugin) Overrides() Overrides { return Overrides{} }

// okxRow renders the nine-element wire row: ts ms, o, h, l, c, vol,
// volCcy, volCcyQuote, confirm.
func okxRow(b candles.Bar) []string {
	return []string{
		strconv.FormatInt(b.OpenTime*1000, 10),
		fmtF(b.Open), fmtF(b.High), fmtF(b.Low), fmtF(b.Close), fmtF(b.Volume),
		fmtF(b.Volume * b.Close),
		fmtF(b.QuoteVolume),
		"1",
	}
}
