package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/geniass/stockwatch/pkg/scraper"
	"github.com/geniass/stockwatch/pkg/store"
)

const (
	DefaultSweepInterval = 60 * time.Second
	DefaultItemDelayMin  = 5 * time.Second
	DefaultItemDelayMax  = 10 * time.Second
)

type ProductChecker interface {
	Check(ctx context.Context, p store.Product) (Outcome, error)
}

type SchedulerOptions struct {
	Interval     time.Duration
	Batch        int
	ItemDelayMin time.Duration
	ItemDelayMax time.Duration
	Logger       *slog.Logger
}

type SweepStats struct {
	Due      int
	Checked  int
	Failed   int
	Notified int
	Duration time.Duration
}

// Scheduler sweeps due products on a fixed period. At most one sweep runs at a time;
// a tick that finds a sweep still running is dropped.
type Scheduler struct {
	store   store.Store
	checker ProductChecker
	opts    SchedulerOptions
	sleep   scraper.SleepFunc
	log     *slog.Logger

	guard sync.Mutex
	wg    sync.WaitGroup
}

func NewScheduler(st store.Store, checker ProductChecker, opts SchedulerOptions) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultSweepInterval
	}
	if opts.Batch <= 0 {
		opts.Batch = store.DefaultDueLimit
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{
		store:   st,
		checker: checker,
		opts:    opts,
		sleep:   scraper.Sleep,
		log:     opts.Logger,
	}
}

// Run ticks until ctx is cancelled, then waits for the running sweep to return.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	defer s.wg.Wait()

	s.log.Info("scheduler started", "interval", s.opts.Interval, "batch", s.opts.Batch)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopping")
			return
		case <-ticker.C:
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.Sweep(ctx)
			}()
		}
	}
}

// Sweep checks the due batch one product at a time. It reports false when another sweep holds the guard.
func (s *Scheduler) Sweep(ctx context.Context) (SweepStats, bool) {
	if !s.guard.TryLock() {
		s.log.Warn("sweep still running, skipping tick")
		return SweepStats{}, false
	}
	defer s.guard.Unlock()

	start := time.Now()
	var stats SweepStats

	due, err := s.store.DueProducts(ctx, s.opts.Batch)
	if err != nil {
		s.log.Error("failed to select due products", "error", err)
		return stats, true
	}
	stats.Due = len(due)
	if len(due) == 0 {
		return stats, true
	}

	for i, p := range due {
		if i > 0 {
			delay := scraper.RandomDuration(s.opts.ItemDelayMin, s.opts.ItemDelayMax)
			if err := s.sleep(ctx, delay); err != nil {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}

		out, err := s.checker.Check(ctx, p)
		stats.Notified += out.Notified
		if err != nil {
			stats.Failed++
			s.log.Warn("check failed", "code", p.Code, "product_id", p.ID, "error", err)
			continue
		}
		stats.Checked++
	}

	stats.Duration = time.Since(start)
	s.log.Info("sweep finished",
		"due", stats.Due,
		"checked", stats.Checked,
		"failed", stats.Failed,
		"notified", stats.Notified,
		"duration", stats.Duration)
	return stats, true
}
