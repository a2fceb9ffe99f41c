package adapter

import (
	"context"
	"strconv"
	"time"
)

// TimestampUnit is the encoding a venue expects and emits for
// timestamps. Each venue declares exactly one unit; the round trip
// through FromSeconds and EnsureSeconds is the identity on Unix
// seconds.
type TimestampUnit string

const (
	UnitSeconds      TimestampUnit = "seconds"
	UnitMilliseconds TimestampUnit = "milliseconds"
	UnitMicroseconds TimestampUnit = "microseconds"
	UnitISO8601      TimestampUnit = "iso8601"
)

// FromSeconds renders a Unix-seconds timestamp in the unit's native
// encoding: an integer for the numeric units, an RFC 3339 string for
// ISO 8601.
func (u TimestampUnit) FromSeconds(ts int64) any {
	switch u {
	case UnitMilliseconds:
		return ts * 1_000
	case UnitMicroseconds:
		return ts * 1_000_000
	case UnitISO8601:
		return time.Unix(ts, 0).UTC().Format(time.RFC3339)
	default:
		return ts
	}
}

// QueryValue renders a Unix-seconds timestamp as the string a query
// parameter in this unit carries.
func (u TimestampUnit) QueryValue(ts int64) string {
	switch v := u.FromSeconds(ts).(type) {
	case int64:
		return strconv.FormatInt(v, 10)
	case string:
		return v
	default:
		return strconv.FormatInt(ts, 10)
	}
}

// KeepAliveKind selects the client-initiated liveness mechanism a
// venue wants on its WebSocket.
type KeepAliveKind string

const (
	// KeepAliveNone sends nothing and relies on the transport.
	KeepAliveNone KeepAliveKind = "none"
	// KeepAliveText sends the configured text payload.
	KeepAliveText KeepAliveKind = "text"
	// KeepAlivePing sends a protocol-level ping frame.
	KeepAlivePing KeepAliveKind = "ping"
)

// KeepAlive is a venue's WebSocket liveness configuration.
type KeepAlive struct {
	Kind     KeepAliveKind
	Interval time.Duration
	Payload  string
}

// Settings carries a venue's fixed behavioral knobs. Zero values are
// meaningful: no keep-alive, async fetch, no connection preparation.
type Settings struct {
	// TimestampUnit governs RESTParams encoding and is what the wire
	// parsers assume on the way in.
	TimestampUnit TimestampUnit

	// KeepAlive is sent by the streaming strategy while connected.
	KeepAlive KeepAlive

	// MaxBarsPerRequest caps one historical fetch; range fetches are
	// chunked to respect it.
	MaxBarsPerRequest int

	// SyncFetch marks venues whose historical fetch must be
	// dispatched on a worker rather than awaited in the strategy
	// loop.
	SyncFetch bool

	// ConnectPrep, when set, runs before each WebSocket dial and
	// returns the URL to connect to. Venues with a token handshake
	// (REST first, then connect) encapsulate it here.
	ConnectPrep func(ctx context.Context, rest RESTClient) (wsURL string, err error)
}
