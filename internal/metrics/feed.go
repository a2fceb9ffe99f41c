// Package metrics defines the prometheus instrument set for feed
// observability. Controllers and strategies accept an optional *Feed;
// every method is nil-safe so library consumers who don't care about
// metrics pass nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Feed bundles the per-feed instruments.
type Feed struct {
	barsIngested  *prometheus.CounterVec
	shapeErrors   *prometheus.CounterVec
	restRetries   *prometheus.CounterVec
	wsReconnects  *prometheus.CounterVec
	windowLength  *prometheus.GaugeVec
	stalenessSecs *prometheus.GaugeVec
}

// NewFeed builds the instrument set and registers it. Pass
// prometheus.DefaultRegisterer for process-wide exposition or a fresh
// registry in tests.
func NewFeed(reg prometheus.Registerer) *Feed {
	f := &Feed{
		barsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "candles_feed_bars_ingested_total",
			Help: "Bars offered to a window store, by source (rest or ws).",
		}, []string{"exchange", "pair", "interval", "source"}),
		shapeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "candles_feed_shape_errors_total",
			Help: "Payloads that parsed as JSON but did not match the venue layout.",
		}, []string{"exchange"}),
		restRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "candles_feed_rest_retries_total",
			Help: "REST attempts beyond the first.",
		}, []string{"exchange"}),
		wsReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "candles_feed_ws_reconnects_total",
			Help: "WebSocket reconnect attempts after an established stream dropped.",
		}, []string{"exchange"}),
		windowLength: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "candles_feed_window_length",
			Help: "Bars currently resident in the window store.",
		}, []string{"exchange", "pair", "interval"}),
		stalenessSecs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "candles_feed_staleness_seconds",
			Help: "Wall-clock age of the newest bar's open time.",
		}, []string{"exchange", "pair", "interval"}),
	}
	if reg != nil {
		reg.MustRegister(
			f.barsIngested,
			f.shapeErrors,
			f.restRetries,
			f.wsReconnects,
			f.windowLength,
			f.stalenessSecs,
		)
	}
	return f
}

// BarsIngested counts bars offered to the store from one source.
func (f *Feed) BarsIngested(exchange, pair, interval, source string, n int) {
	if f == nil || n <= 0 {
		return
	}
	f.barsIngested.WithLabelValues(exchange, pair, interval, source).Add(float64(n))
}

// ShapeError counts one unparseable-but-valid-JSON payload.
func (f *Feed) ShapeError(exchange string) {
	if f == nil {
		return
	}
	f.shapeErrors.WithLabelValues(exchange).Inc()
}

// RESTRetry counts one retried request.
func (f *Feed) RESTRetry(exchange string) {
	if f == nil {
		return
	}
	f.restRetries.WithLabelValues(exchange).Inc()
}

// WSReconnect counts one reconnect attempt.
func (f *Feed) WSReconnect(exchange string) {
	if f == nil {
		return
	}
	f.wsReconnects.WithLabelValues(exchange).Inc()
}

// Window records the store's current length and staleness.
func (f *Feed) Window(exchange, pair, interval string, length int, stalenessSecs float64) {
	if f == nil {
		return
	}
	f.windowLength.WithLabelValues(exchange, pair, interval).Set(float64(length))
	if stalenessSecs >= 0 {
		f.stalenessSecs.WithLabelValues(exchange, pair, interval).Set(stalenessSecs)
	}
}
