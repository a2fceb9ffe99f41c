package feed

import (
	"context"
	"time"

	"github.com/MementoRC/candles-feed/internal/adapter"
	"github.com/MementoRC/candles-feed/internal/candles"
)

// runPolling is the polling strategy loop: an immediate fetch to seed
// the window, then one fetch just after every interval boundary. A
// failed fetch is logged and retried on the next boundary; the loop
// never gives up on its own.
func (c *Controller) runPolling(ctx context.Context) {
	log := c.log.With().Str("strategy", "polling").Logger()

	if err := c.pollOnce(ctx); err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Msg("initial fetch failed")
	}

	for {
		if err := sleep(ctx, c.untilNextBoundary()); err != nil {
			return
		}
		if err := c.pollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Str("kind", string(adapter.KindOf(err))).Err(err).Msg("poll failed, retrying next period")
		}
	}
}

func (c *Controller) pollOnce(ctx context.Context) error {
	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()

	bars, err := c.doFetch(ctx, adapter.FetchOpts{Limit: c.cfg.FetchLimit})
	if err != nil {
		return err
	}
	c.offerAll(bars, "rest")
	return nil
}

// untilNextBoundary returns the wait to the next wall-clock multiple
// of the interval, plus the configured lag so the venue has closed the
// bar.
func (c *Controller) untilNextBoundary() time.Duration {
	now := time.Now()
	next := candles.FloorTo(now.Unix(), c.interval) + c.interval
	wait := time.Duration(next-now.Unix())*time.Second + c.cfg.PollLag
	if wait <= 0 {
		wait = c.cfg.PollLag
	}
	return wait
}
