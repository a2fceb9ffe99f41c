// Package config loads the YAML runtime configuration: which feeds to
// run, per-exchange endpoint overrides, HTTP client shaping and
// logging. The zero configuration is unusable on purpose; a config
// file names at least one feed.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MementoRC/candles-feed/internal/adapter"
)

// Root is the top-level configuration document.
type Root struct {
	Logging   Logging              `yaml:"logging"`
	Client    Client               `yaml:"client"`
	Endpoints map[string]Endpoints `yaml:"endpoints"`
	Feeds     []Feed               `yaml:"feeds"`
}

// Logging selects log level and output format.
type Logging struct {
	// Level is a zerolog level name: trace, debug, info, warn, error.
	Level string `yaml:"level"`
	// Pretty switches from JSON lines to the console writer.
	Pretty bool `yaml:"pretty"`
}

// Client shapes the shared REST client.
type Client struct {
	TimeoutMS    int     `yaml:"timeout_ms"`
	RPS          float64 `yaml:"rps"`
	Burst        int     `yaml:"burst"`
	RetryLimit   int     `yaml:"retry_limit"`
	RetryDelayMS int     `yaml:"retry_delay_ms"`
}

// Timeout returns the per-attempt HTTP timeout.
func (c Client) Timeout() time.Duration { return time.Duration(c.TimeoutMS) * time.Millisecond }

// RetryDelay returns the pause between retry attempts.
func (c Client) RetryDelay() time.Duration { return time.Duration(c.RetryDelayMS) * time.Millisecond }

// Endpoints overrides one exchange's production URLs, normally to
// point a feed at the mock exchange server.
type Endpoints struct {
	REST string `yaml:"rest"`
	WS   string `yaml:"ws"`
}

// Feed declares one (exchange, pair, interval) to run.
type Feed struct {
	Exchange string `yaml:"exchange"`
	Pair     string `yaml:"pair"`
	Interval string `yaml:"interval"`

	// Strategy is polling, websocket or auto. Empty means auto.
	Strategy string `yaml:"strategy"`

	// Capacity bounds the feed's window store.
	Capacity int `yaml:"capacity"`

	// FetchLimit caps bars per historical fetch.
	FetchLimit int `yaml:"fetch_limit"`

	PollLagMS int `yaml:"poll_lag_ms"`
}

// PollLag returns the post-boundary fetch delay.
func (f Feed) PollLag() time.Duration { return time.Duration(f.PollLagMS) * time.Millisecond }

// Default returns the configuration used when no file is given.
func Default() *Root {
	r := &Root{}
	r.applyDefaults()
	return r
}

func (r *Root) applyDefaults() {
	if r.Logging.Level == "" {
		r.Logging.Level = "info"
	}
	if r.Client.TimeoutMS <= 0 {
		r.Client.TimeoutMS = 10_000
	}
	if r.Client.RPS <= 0 {
		r.Client.RPS = 10
	}
	if r.Client.Burst <= 0 {
		r.Client.Burst = 20
	}
	if r.Client.RetryLimit == 0 {
		r.Client.RetryLimit = 3
	}
	if r.Client.RetryDelayMS <= 0 {
		r.Client.RetryDelayMS = 250
	}
	for i := range r.Feeds {
		f := &r.Feeds[i]
		if f.Strategy == "" {
			f.Strategy = "auto"
		}
		if f.Capacity <= 0 {
			f.Capacity = 500
		}
		if f.PollLagMS <= 0 {
			f.PollLagMS = 2_000
		}
	}
}

// Load reads and validates a configuration file. Unknown keys are
// rejected so typos fail loudly instead of silently taking defaults.
func Load(path string) (*Root, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a configuration document.
func Parse(data []byte) (*Root, error) {
	var root Root
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	root.applyDefaults()
	if err := root.Validate(); err != nil {
		return nil, err
	}
	return &root, nil
}

// Validate checks cross-field constraints the decoder cannot.
func (r *Root) Validate() error {
	switch r.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", r.Logging.Level)
	}
	seen := map[string]struct{}{}
	for i, f := range r.Feeds {
		if f.Exchange == "" {
			return fmt.Errorf("config: feeds[%d] missing exchange", i)
		}
		if _, err := adapter.ParsePair(f.Pair); err != nil {
			return fmt.Errorf("config: feeds[%d]: %w", i, err)
		}
		if f.Interval == "" {
			return fmt.Errorf("config: feeds[%d] missing interval", i)
		}
		switch f.Strategy {
		case "polling", "websocket", "auto":
		default:
			return fmt.Errorf("config: feeds[%d] unknown strategy %q", i, f.Strategy)
		}
		key := f.Exchange + "|" + f.Pair + "|" + f.Interval
		if _, dup := seen[key]; dup {
			return fmt.Errorf("config: duplicate feed %s %s %s", f.Exchange, f.Pair, f.Interval)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// EndpointsFor returns the override for an exchange, zero when absent.
func (r *Root) EndpointsFor(exchange string) adapter.Endpoints {
	e := r.Endpoints[exchange]
	return adapter.Endpoints{REST: e.REST, WS: e.WS}
}
