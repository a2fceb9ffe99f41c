package feed

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/MementoRC/candles-feed/internal/adapter"
	"github.com/MementoRC/candles-feed/internal/netclient"
)

// runStreaming is the streaming strategy loop. Each cycle dials,
// subscribes and streams until the transport fails, then backs off
// exponentially before reconnecting. Every subscription, first and
// reconnect alike, triggers a REST backfill to close whatever gap the
// downtime opened. Cancellation exits from any state.
func (c *Controller) runStreaming(ctx context.Context) {
	log := c.log.With().Str("strategy", "websocket").Logger()

	attempt := 0
	for ctx.Err() == nil {
		streamed, err := c.streamSession(ctx, log)
		if ctx.Err() != nil {
			return
		}
		if streamed {
			// A session that reached steady state resets the
			// backoff schedule.
			attempt = 0
		}
		c.met.WSReconnect(c.ad.Exchange())
		delay := c.cfg.Backoff.Delay(attempt)
		attempt++
		log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", delay).Msg("stream lost, reconnecting")
		if sleep(ctx, delay) != nil {
			return
		}
	}
}

// streamSession runs one connect/subscribe/stream cycle. streamed
// reports whether the session reached steady state (received at least
// one frame after subscribing).
func (c *Controller) streamSession(ctx context.Context, log zerolog.Logger) (streamed bool, err error) {
	// CONNECTING. Venues with a token handshake resolve their dial
	// URL first.
	wsURL := c.ad.WSURL()
	if prep := c.settings.ConnectPrep; prep != nil {
		wsURL, err = prep(ctx, c.rest)
		if err != nil {
			return false, err
		}
	}
	session, err := c.dialer.Dial(ctx, wsURL)
	if err != nil {
		return false, err
	}

	// The session must not outlive this cycle: closing it releases a
	// blocked read, and the watcher goroutine closes it on
	// cancellation so stop() is bounded even mid-read.
	sessionCtx, cancelSession := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancelSession()
		session.Close()
		wg.Wait()
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-sessionCtx.Done()
		session.Close()
	}()

	// SUBSCRIBING.
	payload, key := c.ad.WSSubscribePayload(c.cfg.Pair, c.cfg.Interval)
	if err := session.SendJSON(ctx, payload); err != nil {
		return false, err
	}
	log.Debug().Str("subscription", key).Msg("subscribed")

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.backfill(sessionCtx)
	}()

	// An ack or the first data frame moves the session to STREAMING.
	subCtx, cancelSub := context.WithTimeout(sessionCtx, c.cfg.SubscribeTimeout)
	frame, err := session.ReadFrame(subCtx)
	cancelSub()
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, adapter.NewError(c.ad.Exchange(), adapter.KindTransport, "no subscription response", err)
	}
	c.handleFrame(frame)

	// STREAMING. Keep-alive runs beside the read loop.
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.keepAlive(sessionCtx, session)
	}()

	for {
		frame, err := session.ReadFrame(sessionCtx)
		if err != nil {
			if ctx.Err() != nil {
				return true, ctx.Err()
			}
			return true, err
		}
		c.handleFrame(frame)
	}
}

// handleFrame parses one frame and feeds any bars to the store.
// Non-bar frames (acks, heartbeats, pongs) are dropped silently; that
// is the adapter contract, not an error.
func (c *Controller) handleFrame(frame []byte) {
	bars, ok := c.ad.ParseWS(frame)
	if !ok {
		return
	}
	c.offerAll(bars, "ws")
}

// keepAlive sends the venue's liveness payload on its configured
// cadence. Venues without one rely on the transport and get nothing.
func (c *Controller) keepAlive(ctx context.Context, session *netclient.Session) {
	ka := c.settings.KeepAlive
	if ka.Kind == adapter.KeepAliveNone || ka.Kind == "" || ka.Interval <= 0 {
		return
	}
	for {
		if sleep(ctx, ka.Interval) != nil {
			return
		}
		var err error
		switch ka.Kind {
		case adapter.KeepAliveText:
			err = session.SendText(ctx, ka.Payload)
		case adapter.KeepAlivePing:
			err = session.Ping(ctx)
		}
		if err != nil {
			// The read loop observes the same broken transport
			// and drives the reconnect.
			return
		}
	}
}
