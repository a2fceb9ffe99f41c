package netclient

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MementoRC/candles-feed/internal/adapter"
)

// WSConfig tunes WebSocket sessions. Zero values take the defaults
// below.
type WSConfig struct {
	// HandshakeTimeout bounds the dial.
	HandshakeTimeout time.Duration

	// ReceiveTimeout is the per-read deadline. Together with the
	// venue's keep-alive it doubles as the liveness probe: a silent
	// connection errors out of ReadFrame after this long.
	ReceiveTimeout time.Duration

	// WriteTimeout bounds each outbound frame.
	WriteTimeout time.Duration
}

func (c WSConfig) withDefaults() WSConfig {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.ReceiveTimeout <= 0 {
		c.ReceiveTimeout = 60 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	return c
}

// Dialer opens WebSocket sessions. Injectable for embedding hosts.
type Dialer interface {
	Dial(ctx context.Context, rawURL string) (*Session, error)
}

// WSDialer is the default Dialer on gorilla/websocket.
type WSDialer struct {
	cfg WSConfig
}

// NewWSDialer builds the default dialer.
func NewWSDialer(cfg WSConfig) *WSDialer {
	return &WSDialer{cfg: cfg.withDefaults()}
}

// Dial opens a session. The returned session is passive: it spawns no
// goroutines, and a blocked ReadFrame is released by Close.
func (d *WSDialer) Dial(ctx context.Context, rawURL string) (*Session, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.cfg.HandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}
	conn, resp, err := dialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, &adapter.Error{
			Kind:       adapter.KindTransport,
			Message:    fmt.Sprintf("websocket dial %s", rawURL),
			HTTPStatus: status,
			Cause:      err,
		}
	}
	return &Session{conn: conn, cfg: d.cfg}, nil
}

// Session is one open WebSocket. Reads come from a single loop; writes
// are serialized internally so keep-alive ticks and subscriptions may
// come from different goroutines.
type Session struct {
	conn      *websocket.Conn
	cfg       WSConfig
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// ReadFrame returns the next text or binary frame. The read blocks for
// at most the receive timeout (or the context deadline, whichever is
// sooner); cancel by closing the session from another goroutine.
func (s *Session) ReadFrame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	deadline := time.Now().Add(s.cfg.ReceiveTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetReadDeadline(deadline)
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &adapter.Error{
			Kind:    adapter.KindTransport,
			Message: "websocket receive",
			Cause:   err,
		}
	}
	return data, nil
}

// SendJSON writes one JSON text frame.
func (s *Session) SendJSON(ctx context.Context, v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(s.writeDeadline(ctx))
	if err := s.conn.WriteJSON(v); err != nil {
		return &adapter.Error{Kind: adapter.KindTransport, Message: "websocket send", Cause: err}
	}
	return nil
}

// SendText writes one raw text frame, used for venue keep-alive
// payloads.
func (s *Session) SendText(ctx context.Context, payload string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(s.writeDeadline(ctx))
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		return &adapter.Error{Kind: adapter.KindTransport, Message: "websocket send", Cause: err}
	}
	return nil
}

// Ping sends a protocol-level ping frame.
func (s *Session) Ping(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteControl(websocket.PingMessage, nil, s.writeDeadline(ctx)); err != nil {
		return &adapter.Error{Kind: adapter.KindTransport, Message: "websocket ping", Cause: err}
	}
	return nil
}

// Close sends a best-effort close frame and tears the connection down.
// Safe to call repeatedly and from any goroutine; it releases a
// concurrent blocked ReadFrame.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		s.writeMu.Unlock()
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *Session) writeDeadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(s.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return deadline
}
