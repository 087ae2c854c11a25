package ingest

import (
	"context"
	"sync"
	"time"
)

// throttle is a token bucket in front of the embedding endpoint. A nil throttle
// never blocks.
type throttle struct {
	mu     sync.Mutex
	tokens float64
	burst  float64
	perSec float64
	last   time.Time
}

func newThrottle(burst int, perMinute float64) *throttle {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &throttle{
		tokens: float64(burst),
		burst:  float64(burst),
		perSec: perMinute / 60,
		last:   time.Now(),
	}
}

// reserve takes a token if one is available, otherwise it reports how long until
// the next one.
func (t *throttle) reserve(now time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if now.After(t.last) {
		t.tokens = min(t.burst, t.tokens+now.Sub(t.last).Seconds()*t.perSec)
		t.last = now
	}
	if t.tokens >= 1 {
		t.tokens--
		return 0
	}
	return time.Duration((1 - t.tokens) / t.perSec * float64(time.Second))
}

// wait blocks until a token is available or ctx is done.
func (t *throttle) wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	for {
		d := t.reserve(time.Now())
		if d == 0 {
			return nil
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
