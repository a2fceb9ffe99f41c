package feed

import (
	"context"

	"github.com/MementoRC/candles-feed/internal/adapter"
	"github.com/MementoRC/candles-feed/internal/candles"
)

// FetchHistory performs a one-shot historical fetch, independent of
// Start. Zero start, end and limit mean "absent": with no range the
// call fetches the most recent bars up to limit; with a range it walks
// the span in chunks bounded by the venue's per-request maximum and
// keeps only bars inside the range. The returned slice holds the bars
// inserted into the window during the call, ascending.
func (c *Controller) FetchHistory(ctx context.Context, startSeconds, endSeconds int64, limit int) ([]candles.Bar, error) {
	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()

	if startSeconds == 0 {
		if limit <= 0 {
			limit = c.cfg.FetchLimit
		}
		bars, err := c.doFetch(ctx, adapter.FetchOpts{EndSeconds: endSeconds, Limit: limit})
		if err != nil {
			return nil, err
		}
		inserted := c.keepInRange(bars, 0, endSeconds)
		c.offerAll(inserted, "rest")
		return inserted, nil
	}
	return c.fetchRange(ctx, startSeconds, endSeconds, limit)
}

// fetchRange walks [start, end] forward in per-request chunks.
func (c *Controller) fetchRange(ctx context.Context, start, end int64, limit int) ([]candles.Bar, error) {
	if end == 0 {
		end = candles.NowSeconds()
	}
	maxPerCall := c.settings.MaxBarsPerRequest
	if maxPerCall <= 0 {
		maxPerCall = c.cfg.FetchLimit
	}
	span := maxPerCall * int(c.interval)

	var out []candles.Bar
	seen := make(map[int64]struct{})
	for chunkStart := start; chunkStart <= end; chunkStart += int64(span) {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		chunkEnd := chunkStart + int64(span) - c.interval
		if chunkEnd > end {
			chunkEnd = end
		}
		bars, err := c.doFetch(ctx, adapter.FetchOpts{
			StartSeconds: chunkStart,
			EndSeconds:   chunkEnd,
			Limit:        maxPerCall,
		})
		if err != nil {
			return out, err
		}
		kept := c.keepInRange(bars, start, end)
		c.offerAll(kept, "rest")
		// Venues without an end parameter over-deliver into later
		// chunks; keep each slot once.
		for _, b := range kept {
			if _, dup := seen[b.OpenTime]; dup {
				continue
			}
			seen[b.OpenTime] = struct{}{}
			out = append(out, b)
		}
		if limit > 0 && len(out) >= limit {
			out = out[:limit]
			break
		}
	}
	return out, nil
}

// doFetch performs one adapter fetch. Venues flagged synchronous are
// dispatched on a worker goroutine so a blocking client cannot pin the
// strategy loop past cancellation.
func (c *Controller) doFetch(ctx context.Context, opts adapter.FetchOpts) ([]candles.Bar, error) {
	if !c.settings.SyncFetch {
		return c.fetchDirect(ctx, opts)
	}
	type result struct {
		bars []candles.Bar
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		bars, err := c.fetchDirect(ctx, opts)
		ch <- result{bars, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.bars, r.err
	}
}

func (c *Controller) fetchDirect(ctx context.Context, opts adapter.FetchOpts) ([]candles.Bar, error) {
	params := c.ad.RESTParams(c.cfg.Pair, c.cfg.Interval, opts)
	body, err := c.rest.GetJSON(ctx, c.ad.RESTURL(), params)
	if err != nil {
		return nil, err
	}
	bars, err := c.ad.ParseREST(body)
	if err != nil {
		if adapter.IsKind(err, adapter.KindShape) {
			c.met.ShapeError(c.ad.Exchange())
		}
		return nil, err
	}
	return bars, nil
}

// keepInRange trims bars outside [start, end]. Venues without an end
// parameter over-deliver; the trim keeps FetchHistory's contract
// exact. Zero bounds pass everything on that side.
func (c *Controller) keepInRange(bars []candles.Bar, start, end int64) []candles.Bar {
	out := bars[:0:len(bars)]
	for _, b := range bars {
		if start > 0 && b.OpenTime < start {
			continue
		}
		if end > 0 && b.OpenTime > end {
			continue
		}
		out = append(out, b)
	}
	return out
}

// backfill closes the gap behind the stream: from the newest resident
// bar (or a default window when empty) up to now.
func (c *Controller) backfill(ctx context.Context) {
	start := int64(0)
	if newest, ok := c.store.Newest(); ok {
		start = newest.OpenTime
	} else {
		start, _ = candles.RangeFor(c.cfg.FetchLimit, c.interval, candles.NowSeconds())
	}
	if _, err := c.FetchHistory(ctx, start, 0, 0); err != nil && adapter.KindOf(err) != adapter.KindCancelled {
		c.log.Warn().Err(err).Msg("backfill failed")
	}
}
