package monitor

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RefreshLimiter caps on-demand checks per owner. Scheduled sweeps are not counted.
type RefreshLimiter struct {
	perMinute int
	now       func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewRefreshLimiter(perMinute int) *RefreshLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	return &RefreshLimiter{
		perMinute: perMinute,
		now:       time.Now,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Allow consumes one check for owner. When denied it reports how long until the next one is free.
func (l *RefreshLimiter) Allow(owner string) (bool, time.Duration) {
	lim := l.limiter(owner)
	now := l.now()

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Minute
	}
	if wait := r.DelayFrom(now); wait > 0 {
		r.CancelAt(now)
		return false, wait
	}
	return true, 0
}

func (l *RefreshLimiter) limiter(owner string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[owner]
	if !ok {
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)
		l.limiters[owner] = lim
	}
	return lim
}
