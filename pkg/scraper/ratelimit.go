package scraper

import (
	"context"
	"net/url"
	"sync"
	"time"
)

// RateLimiter spaces out grants per origin by at least MinInterval plus a random jitter.
// Acquisitions for the same origin are serialized; the gate lock is held while waiting.
type RateLimiter struct {
	minInterval time.Duration
	jitterMin   time.Duration
	jitterMax   time.Duration

	now   func() time.Time
	sleep SleepFunc

	mu    sync.Mutex
	gates map[string]*originGate
}

type originGate struct {
	mu   sync.Mutex
	last time.Time
}

func NewRateLimiter(minInterval, jitterMin, jitterMax time.Duration) *RateLimiter {
	return &RateLimiter{
		minInterval: minInterval,
		jitterMin:   jitterMin,
		jitterMax:   jitterMax,
		now:         time.Now,
		sleep:       Sleep,
		gates:       make(map[string]*originGate),
	}
}

// Acquire blocks until origin may be hit again and records the grant.
func (l *RateLimiter) Acquire(ctx context.Context, origin string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g := l.gate(origin)
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.last.IsZero() {
		spacing := l.minInterval + RandomDuration(l.jitterMin, l.jitterMax)
		if wait := g.last.Add(spacing).Sub(l.now()); wait > 0 {
			if err := l.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	g.last = l.now()
	return nil
}

// LastGrant returns the time of the last grant for origin, zero if none.
func (l *RateLimiter) LastGrant(origin string) time.Time {
	g := l.gate(origin)
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

func (l *RateLimiter) gate(origin string) *originGate {
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.gates[origin]
	if !ok {
		g = &originGate{}
		l.gates[origin] = g
	}
	return g
}

// OriginOf reduces a URL to scheme://host, which is the rate limiting key.
func OriginOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Scheme + "://" + u.Host
}
