// Package feed is the per-(exchange, pair, interval) runtime: a
// controller owning one window store, one exchange adapter and at most
// one active data-source strategy, either boundary-aligned REST
// polling or WebSocket streaming with REST backfill.
package feed

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/MementoRC/candles-feed/internal/adapter"
	"github.com/MementoRC/candles-feed/internal/candles"
	"github.com/MementoRC/candles-feed/internal/metrics"
	"github.com/MementoRC/candles-feed/internal/netclient"
)

// Kind selects the data-source strategy.
type Kind string

const (
	// KindPolling fetches over REST on interval boundaries.
	KindPolling Kind = "polling"
	// KindWebsocket streams over WebSocket with REST backfill.
	KindWebsocket Kind = "websocket"
	// KindAuto prefers streaming when the adapter lists the interval
	// as streamable, else polls.
	KindAuto Kind = "auto"
)

// ParseKind validates a strategy name from config or CLI input.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindPolling, KindWebsocket, KindAuto:
		return Kind(s), nil
	}
	return "", adapter.MisuseError("unknown strategy %q", s)
}

// Config assembles a controller. Exchange, Pair, Interval and Capacity
// are required; everything else has working defaults. REST, Dialer,
// Logger and Metrics are the environment-injection points for
// embedding hosts.
type Config struct {
	// Exchange is the registry name; ignored when Adapter is set.
	Exchange string

	// Adapter overrides registry lookup with a ready-made instance.
	Adapter adapter.Adapter

	// Endpoints redirects the adapter's URLs, normally to the mock
	// exchange server. Only used with registry lookup.
	Endpoints adapter.Endpoints

	Pair     adapter.Pair
	Interval string

	// Capacity bounds the window store.
	Capacity int

	// REST serves historical fetches and connection handshakes.
	REST adapter.RESTClient

	// Dialer opens streaming sessions.
	Dialer netclient.Dialer

	Logger  zerolog.Logger
	Metrics *metrics.Feed

	// FetchLimit caps bars per polling fetch; clamped to the
	// adapter's per-request maximum.
	FetchLimit int

	// PollLag delays each boundary-aligned poll so the venue has
	// closed the bar.
	PollLag time.Duration

	// SubscribeTimeout bounds the wait for the first frame after a
	// subscription is sent.
	SubscribeTimeout time.Duration

	Backoff Backoff
}

func (c Config) withDefaults() Config {
	if c.FetchLimit <= 0 {
		c.FetchLimit = 200
	}
	if c.PollLag <= 0 {
		c.PollLag = 2 * time.Second
	}
	if c.SubscribeTimeout <= 0 {
		c.SubscribeTimeout = 10 * time.Second
	}
	c.Backoff = c.Backoff.withDefaults()
	return c
}

// Controller is the public façade of one feed.
type Controller struct {
	cfg      Config
	ad       adapter.Adapter
	settings adapter.Settings
	store    *candles.Store
	rest     adapter.RESTClient
	dialer   netclient.Dialer
	log      zerolog.Logger
	met      *metrics.Feed
	interval int64

	mu      sync.Mutex
	running Kind
	cancel  context.CancelFunc
	done    chan struct{}

	// fetchMu serializes on-demand fetches with the polling path so
	// the store sees one writer at a time.
	fetchMu sync.Mutex
}

// New validates the configuration and builds a stopped controller.
func New(cfg Config) (*Controller, error) {
	cfg = cfg.withDefaults()

	ad := cfg.Adapter
	if ad == nil {
		var err error
		ad, err = adapter.New(cfg.Exchange, cfg.Endpoints)
		if err != nil {
			return nil, err
		}
	}
	if err := cfg.Pair.Validate(); err != nil {
		return nil, err
	}
	secs, ok := ad.Intervals().Seconds(cfg.Interval)
	if !ok {
		return nil, adapter.MisuseError("interval %q not supported by %s", cfg.Interval, ad.Exchange())
	}
	if cfg.Capacity <= 0 {
		return nil, adapter.MisuseError("window capacity must be positive, got %d", cfg.Capacity)
	}
	store, err := candles.NewStore(cfg.Pair.String(), secs, cfg.Capacity)
	if err != nil {
		return nil, adapter.MisuseError("window store: %v", err)
	}

	settings := ad.Settings()
	if cfg.FetchLimit > settings.MaxBarsPerRequest && settings.MaxBarsPerRequest > 0 {
		cfg.FetchLimit = settings.MaxBarsPerRequest
	}

	rest := cfg.REST
	if rest == nil {
		rest = netclient.New(netclient.Config{Name: ad.Exchange(), Logger: cfg.Logger})
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = netclient.NewWSDialer(netclient.WSConfig{})
	}

	log := cfg.Logger.With().
		Str("exchange", ad.Exchange()).
		Str("pair", cfg.Pair.String()).
		Str("interval", cfg.Interval).
		Logger()

	return &Controller{
		cfg:      cfg,
		ad:       ad,
		settings: settings,
		store:    store,
		rest:     rest,
		dialer:   dialer,
		log:      log,
		met:      cfg.Metrics,
		interval: secs,
	}, nil
}

// Exchange returns the adapter's registry name.
func (c *Controller) Exchange() string { return c.ad.Exchange() }

// Pair returns the feed's canonical pair.
func (c *Controller) Pair() adapter.Pair { return c.cfg.Pair }

// Interval returns the canonical interval name.
func (c *Controller) Interval() string { return c.cfg.Interval }

// IntervalSeconds returns the bar duration.
func (c *Controller) IntervalSeconds() int64 { return c.interval }

// Start launches the chosen strategy. Starting an already-running
// controller with the same effective kind is a no-op; asking for a
// different kind while running is a misuse error.
func (c *Controller) Start(kind Kind) error {
	resolved, err := c.resolve(kind)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running != "" {
		if c.running == resolved {
			return nil
		}
		return adapter.MisuseError("feed already running %s strategy, cannot start %s", c.running, resolved)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.running = resolved
	c.cancel = cancel
	c.done = done

	c.log.Info().Str("strategy", string(resolved)).Msg("starting feed")
	go func() {
		defer close(done)
		switch resolved {
		case KindPolling:
			c.runPolling(ctx)
		case KindWebsocket:
			c.runStreaming(ctx)
		}
	}()
	return nil
}

// resolve maps auto onto a concrete strategy.
func (c *Controller) resolve(kind Kind) (Kind, error) {
	switch kind {
	case KindPolling, KindWebsocket:
		return kind, nil
	case KindAuto:
		if _, ok := c.ad.WSIntervals()[c.cfg.Interval]; ok {
			return KindWebsocket, nil
		}
		return KindPolling, nil
	}
	return "", adapter.MisuseError("unknown strategy %q", kind)
}

// Running reports the active strategy kind, empty when stopped.
func (c *Controller) Running() Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Stop cancels the active strategy and waits for its loop to exit.
// Idempotent; returns once the store is no longer being written.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.running = ""
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.log.Info().Msg("feed stopped")
}

// Bars returns a stable snapshot of the window.
func (c *Controller) Bars() []candles.Bar { return c.store.Snapshot() }

// Table returns the ten-column projection of the window.
func (c *Controller) Table() candles.Table { return c.store.Table() }

// GapFree reports the store's equidistance check.
func (c *Controller) GapFree() bool { return c.store.SortedAndEquidistant() }

// Store exposes the window for consumers that want Len/Oldest/Newest.
func (c *Controller) Store() *candles.Store { return c.store }

// offerAll feeds parsed bars into the store, counting and logging
// instead of failing: a misaligned bar is an adapter defect, not a
// reason to stall the feed.
func (c *Controller) offerAll(bars []candles.Bar, source string) int {
	inserted := 0
	for _, b := range bars {
		if err := c.store.Offer(b); err != nil {
			c.met.ShapeError(c.ad.Exchange())
			c.log.Warn().Err(err).Int64("open_time", b.OpenTime).Msg("bar rejected by store")
			continue
		}
		inserted++
	}
	c.met.BarsIngested(c.ad.Exchange(), c.cfg.Pair.String(), c.cfg.Interval, source, inserted)
	if newest, ok := c.store.Newest(); ok {
		staleness := float64(candles.NowSeconds() - newest.OpenTime)
		c.met.Window(c.ad.Exchange(), c.cfg.Pair.String(), c.cfg.Interval, c.store.Len(), staleness)
	}
	return inserted
}
