package feed

import (
	"context"
	"math/rand"
	"time"
)

// Backoff produces reconnect delays growing as base·2^attempt up to
// cap, with jitter so a fleet of feeds does not reconnect in lockstep.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

func (b Backoff) withDefaults() Backoff {
	if b.Base <= 0 {
		b.Base = time.Second
	}
	if b.Cap <= 0 {
		b.Cap = 60 * time.Second
	}
	return b
}

// Delay returns the wait before reconnect attempt n (0-based). The
// result is uniformly jittered within [d/2, d] of the exponential
// value.
func (b Backoff) Delay(attempt int) time.Duration {
	b = b.withDefaults()
	d := b.Base
	for i := 0; i < attempt && d < b.Cap; i++ {
		d *= 2
	}
	if d > b.Cap {
		d = b.Cap
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

// sleep waits for the duration or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
