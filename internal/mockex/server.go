package mockex

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/MementoRC/candles-feed/internal/adapter"
	"github.com/MementoRC/candles-feed/internal/candles"
)

const (
	defaultHistoryBars  = 200
	defaultRetention    = 1000
	defaultWeightBudget = 1200
)

// series is the candle history of one (pair, interval).
type series struct {
	pair     string
	interval string
	secs     int64
	gen      *BarGenerator
	bars     []candles.Bar
	lastOpen int64
}

func (s *series) last() candles.Bar {
	return s.bars[len(s.bars)-1]
}

// Server hosts the REST routes and WebSocket endpoint of every
// registered plugin on one ephemeral listener.
type Server struct {
	log       zerolog.Logger
	router    *mux.Router
	http      *http.Server
	listener  net.Listener
	plugins   map[string]*pluginHost
	conds     *conditions
	retention int

	mu           sync.RWMutex
	series       map[string]*series // pair|interval
	tradingPairs map[string]float64 // canonical pair -> anchor price
	symbolIndex  map[string]string  // stripped symbol -> canonical pair
	requestCount map[string]int     // per-IP bookkeeping

	genCancel context.CancelFunc
	genDone   chan struct{}
	subs      *subscriptions
}

// pluginHost pairs a plugin with its server-side envelope state.
type pluginHost struct {
	plugin  Plugin
	limiter *rateLimiter
	weight  int
}

// NewServer builds a stopped simulator hosting the given plugins.
func NewServer(log zerolog.Logger, plugins ...Plugin) (*Server, error) {
	if len(plugins) == 0 {
		return nil, fmt.Errorf("mock server needs at least one plugin")
	}
	s := &Server{
		log:          log.With().Str("component", "mockex").Logger(),
		router:       mux.NewRouter(),
		plugins:      map[string]*pluginHost{},
		conds:        newConditions(),
		retention:    defaultRetention,
		series:       map[string]*series{},
		tradingPairs: map[string]float64{},
		symbolIndex:  map[string]string{},
		requestCount: map[string]int{},
		subs:         newSubscriptions(),
	}
	for _, p := range plugins {
		if _, dup := s.plugins[p.Name()]; dup {
			return nil, fmt.Errorf("plugin %q registered twice", p.Name())
		}
		ov := p.Overrides()
		budget := ov.RateLimitPerMinute
		if budget <= 0 {
			budget = defaultWeightBudget
		}
		weight := ov.CandleWeight
		if weight <= 0 {
			weight = 1
		}
		host := &pluginHost{plugin: p, limiter: newRateLimiter(budget), weight: weight}
		s.plugins[p.Name()] = host
		s.mountRoutes(host)
	}
	return s, nil
}

func (s *Server) mountRoutes(host *pluginHost) {
	for _, route := range host.plugin.RESTRoutes() {
		var h http.HandlerFunc
		switch route.Handler {
		case "candles":
			h = s.handleCandles(host)
		case "ping":
			h = s.handlePing(host)
		case "time":
			h = s.handleTime(host)
		case "bullet":
			h = s.handleBullet(host)
		default:
			panic(fmt.Sprintf("plugin %s routes unknown handler %q", host.plugin.Name(), route.Handler))
		}
		s.router.HandleFunc(route.Path, h).Methods(route.Method)
	}
	s.router.HandleFunc(host.plugin.WSPath(), s.handleWS(host))
}

// Start binds an ephemeral port and launches the background candle
// generator.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("mock server listen: %w", err)
	}
	s.listener = ln
	httpSrv := &http.Server{Handler: s.router}
	s.http = httpSrv
	go func() {
		if err := httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("mock server stopped")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	s.genCancel = cancel
	s.genDone = make(chan struct{})
	go s.generate(ctx)

	s.log.Info().Str("addr", s.Addr()).Msg("mock exchange server up")
	return nil
}

// Stop closes every connection and joins the generator.
func (s *Server) Stop() {
	if s.genCancel != nil {
		s.genCancel()
		<-s.genDone
		s.genCancel = nil
	}
	s.CloseWSConnections()
	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = s.http.Shutdown(ctx)
		cancel()
		s.http = nil
	}
}

// Addr returns the bound host:port.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Endpoints returns the adapter endpoint overrides pointing the named
// exchange at this simulator. This replaces URL patching: tests pass
// the result to the adapter registry instead of rewriting constants.
func (s *Server) Endpoints(exchange string) (adapter.Endpoints, error) {
	if _, ok := s.plugins[exchange]; !ok {
		return adapter.Endpoints{}, adapter.MisuseError("no mock plugin for exchange %q", exchange)
	}
	return adapter.Endpoints{
		REST: "http://" + s.Addr(),
		WS:   "ws://" + s.Addr(),
	}, nil
}

// SetNetworkConditions turns on fault simulation for every handler.
func (s *Server) SetNetworkConditions(nc NetworkConditions) {
	s.conds.set(nc)
}

// ResetNetworkConditions restores clean transport.
func (s *Server) ResetNetworkConditions() {
	s.conds.set(NetworkConditions{})
}

// AddTradingPair registers a canonical pair at an anchor price and
// generates its initial history for each interval.
func (s *Server) AddTradingPair(pair string, price float64, intervals ...string) error {
	if len(intervals) == 0 {
		return fmt.Errorf("trading pair %s needs at least one interval", pair)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tradingPairs[pair] = price
	s.symbolIndex[stripKey(pair)] = pair

	now := candles.NowSeconds()
	for _, interval := range intervals {
		secs, ok := intervalSeconds[interval]
		if !ok {
			return fmt.Errorf("unknown interval %q", interval)
		}
		key := seriesKey(pair, interval)
		if _, dup := s.series[key]; dup {
			continue
		}
		gen := NewBarGenerator(GenConfig{
			AnchorPrice: price,
			Seed:        int64(len(s.series)) + 7,
		})
		lastOpen := candles.FloorTo(now, secs)
		s.series[key] = &series{
			pair:     pair,
			interval: interval,
			secs:     secs,
			gen:      gen,
			bars:     gen.History(lastOpen, secs, defaultHistoryBars),
			lastOpen: lastOpen,
		}
	}
	return nil
}

// InjectPriceEvent shifts one pair's walk for scenario tests.
func (s *Server) InjectPriceEvent(pair, interval string, fraction float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sr, ok := s.series[seriesKey(pair, interval)]; ok {
		sr.gen.InjectPriceEvent(fraction)
	}
}

// RequestCounts snapshots the per-IP request bookkeeping.
func (s *Server) RequestCounts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.requestCount))
	for ip, n := range s.requestCount {
		out[ip] = n
	}
	return out
}

func seriesKey(pair, interval string) string { return pair + "|" + interval }

// envelope applies the uniform handler prelude: bookkeeping, network
// conditions, rate limit. It reports whether the request may proceed.
func (s *Server) envelope(host *pluginHost, w http.ResponseWriter, r *http.Request) bool {
	ip := clientIP(r.RemoteAddr)
	s.mu.Lock()
	s.requestCount[ip]++
	s.mu.Unlock()

	if status := s.conds.apply(); status != 0 {
		s.writeJSON(w, status, host.plugin.ErrorBody(status, "simulated network fault"))
		return false
	}
	if !host.limiter.allow(ip, host.weight) {
		w.Header().Set("Retry-After", "1")
		s.writeJSON(w, http.StatusTooManyRequests, host.plugin.ErrorBody(http.StatusTooManyRequests, "rate limit exceeded"))
		return false
	}
	return true
}

func (s *Server) handleCandles(host *pluginHost) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.envelope(host, w, r) {
			return
		}
		q, err := host.plugin.ParseCandleQuery(r.URL.Query())
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, host.plugin.ErrorBody(http.StatusBadRequest, err.Error()))
			return
		}
		sr, ok := s.lookup(q.Symbol, q.Interval)
		if !ok {
			s.writeJSON(w, http.StatusBadRequest, host.plugin.ErrorBody(http.StatusBadRequest, "unknown symbol or interval"))
			return
		}
		bars := s.slice(sr, q)
		s.writeJSON(w, http.StatusOK, host.plugin.FormatRESTCandles(q, bars))
	}
}

func (s *Server) handlePing(host *pluginHost) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.envelope(host, w, r) {
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{})
	}
}

func (s *Server) handleTime(host *pluginHost) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.envelope(host, w, r) {
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"serverTime": time.Now().UnixMilli()})
	}
}

// handleBullet serves KuCoin-style connect-token handshakes, pointing
// the client back at this server's WebSocket endpoint.
func (s *Server) handleBullet(host *pluginHost) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.envelope(host, w, r) {
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{
			"code": "200000",
			"data": map[string]any{
				"token": "mock-token",
				"instanceServers": []map[string]any{{
					"endpoint":     "ws://" + s.Addr() + host.plugin.WSPath(),
					"protocol":     "websocket",
					"pingInterval": 18000,
					"pingTimeout":  10000,
				}},
			},
		})
	}
}

// lookup resolves a wire symbol and canonical interval to a series.
func (s *Server) lookup(symbol, interval string) (*series, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pair, ok := s.symbolIndex[stripKey(symbol)]
	if !ok {
		return nil, false
	}
	sr, ok := s.series[seriesKey(pair, interval)]
	return sr, ok
}

// slice copies the queried window out of a series.
func (s *Server) slice(sr *series, q CandleQuery) []candles.Bar {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]candles.Bar, 0, len(sr.bars))
	for _, b := range sr.bars {
		if q.Start > 0 && b.OpenTime < q.Start {
			continue
		}
		if q.End > 0 && b.OpenTime > q.End {
			continue
		}
		out = append(out, b)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		// Venues serve the most recent rows when over limit.
		out = out[len(out)-q.Limit:]
	}
	return out
}

// generate is the background candle task: every second it crosses any
// elapsed interval boundaries with fresh bars, drifts each trailing
// bar, prunes old history and broadcasts the updated bar to
// subscribers.
func (s *Server) generate(ctx context.Context) {
	defer close(s.genDone)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(candles.NowSeconds())
		}
	}
}

func (s *Server) tick(now int64) {
	type update struct {
		sr  *series
		bar candles.Bar
	}
	var updates []update

	s.mu.Lock()
	for _, sr := range s.series {
		boundary := candles.FloorTo(now, sr.secs)
		for sr.lastOpen < boundary {
			sr.lastOpen += sr.secs
			sr.bars = append(sr.bars, sr.gen.Next(sr.lastOpen))
		}
		if n := len(sr.bars); n > 0 {
			sr.gen.Mutate(&sr.bars[n-1])
			if n > s.retention {
				sr.bars = append(sr.bars[:0:0], sr.bars[n-s.retention:]...)
			}
			updates = append(updates, update{sr: sr, bar: sr.last()})
		}
	}
	s.mu.Unlock()

	for _, u := range updates {
		s.broadcastCandle(Subscription{Pair: u.sr.pair, Interval: u.sr.interval}, u.bar)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}
