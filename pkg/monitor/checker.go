package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/geniass/stockwatch/pkg/cache"
	"github.com/geniass/stockwatch/pkg/notify"
	"github.com/geniass/stockwatch/pkg/scraper"
	"github.com/geniass/stockwatch/pkg/store"
)

const (
	DefaultRestockRepeat = 10
	DefaultRestockDelay  = 2 * time.Second
)

var ErrRefreshLimited = errors.New("on-demand check limit reached")

// RefreshLimitedError carries how long the owner has to wait for the next on-demand check.
type RefreshLimitedError struct {
	Wait time.Duration
}

func (e *RefreshLimitedError) Error() string {
	return fmt.Sprintf("%s, retry in %s", ErrRefreshLimited, e.Wait.Round(time.Second))
}

func (e *RefreshLimitedError) Unwrap() error {
	return ErrRefreshLimited
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

type Extractor interface {
	Extract(code, url, content string) scraper.FetchResult
	Fallback(code, url string) scraper.FetchResult
}

type CheckerOptions struct {
	RestockRepeat     int
	RestockDelay      time.Duration
	BlockedBackoffMin time.Duration
	BlockedBackoffMax time.Duration
	Logger            *slog.Logger
}

// Checker performs one check of one product: cache or fetch, extract, compare, record, alert.
type Checker struct {
	store     store.Store
	cache     cache.Cache
	fetcher   Fetcher
	extractor Extractor
	notifier  notify.Notifier
	refresh   *RefreshLimiter

	opts  CheckerOptions
	sleep scraper.SleepFunc
	now   func() time.Time
	log   *slog.Logger
}

// Outcome describes a completed check.
type Outcome struct {
	Product  store.Product
	Result   scraper.FetchResult
	Cached   bool
	Decision Decision
	Notified int
}

func NewChecker(st store.Store, c cache.Cache, f Fetcher, e Extractor, n notify.Notifier, refresh *RefreshLimiter, opts CheckerOptions) *Checker {
	if opts.RestockRepeat < 1 {
		opts.RestockRepeat = DefaultRestockRepeat
	}
	if opts.RestockDelay < 0 {
		opts.RestockDelay = DefaultRestockDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if refresh == nil {
		refresh = NewRefreshLimiter(5)
	}
	return &Checker{
		store:     st,
		cache:     c,
		fetcher:   f,
		extractor: e,
		notifier:  n,
		refresh:   refresh,
		opts:      opts,
		sleep:     scraper.Sleep,
		now:       time.Now,
		log:       opts.Logger,
	}
}

// CheckNow runs an on-demand check of one of owner's products, subject to the owner's refresh limit.
func (c *Checker) CheckNow(ctx context.Context, owner, code string) (Outcome, error) {
	if ok, wait := c.refresh.Allow(owner); !ok {
		return Outcome{}, &RefreshLimitedError{Wait: wait}
	}
	p, err := c.store.FindProduct(ctx, owner, code)
	if err != nil {
		return Outcome{}, err
	}
	return c.Check(ctx, p)
}

// Check never aborts on a bad page: fetch failures are recorded on the product and returned.
func (c *Checker) Check(ctx context.Context, p store.Product) (Outcome, error) {
	log := c.log.With("code", p.Code, "product_id", p.ID)

	result, cached := c.cache.Get(ctx, p.Code)
	if !cached {
		content, err := c.fetcher.Fetch(ctx, p.URL)
		if err != nil {
			return Outcome{Product: p}, c.fetchFailed(ctx, log, p, err)
		}
		result = c.extractor.Extract(p.Code, p.URL, content)
		if result.Usable() {
			c.cache.Set(ctx, p.Code, result)
		}
	}
	if result.Degraded() {
		log.Info("extraction degraded", "price_found", result.Price.Valid, "availability", result.Availability)
	}

	obs := store.Observation{Availability: result.Availability, Price: result.Price}
	if result.Title != c.extractor.Fallback(p.Code, p.URL).Title {
		obs.Title = result.Title
	}
	// the stored state the decision compares against is read under the same row lock as the write
	rec, err := c.store.RecordObservation(ctx, p.ID, obs)
	if err != nil {
		return Outcome{Product: p, Result: result, Cached: cached}, errors.Wrap(err, "record observation")
	}

	out := Outcome{Product: rec.Product, Result: result, Cached: cached}
	if !rec.Before.Active() {
		return out, nil
	}
	out.Decision = Decide(rec.Before.Availability, result.Availability, rec.Drop)
	out.Notified = c.emit(ctx, log, rec.Product, result, rec.Drop, out.Decision)

	log.Debug("checked",
		"availability", result.Availability,
		"price", result.Price,
		"cached", cached,
		"notified", out.Notified)
	return out, nil
}

func (c *Checker) fetchFailed(ctx context.Context, log *slog.Logger, p store.Product, err error) error {
	log.Warn("fetch failed", "error", err, "status", scraper.StatusOf(err))

	if _, recErr := c.store.RecordFailure(ctx, p.ID); recErr != nil {
		log.Error("failed to record fetch failure", "error", recErr)
	}

	if scraper.IsKind(err, scraper.KindBlocked) {
		backoff := scraper.RandomDuration(c.opts.BlockedBackoffMin, c.opts.BlockedBackoffMax)
		log.Warn("blocked, backing off", "backoff", backoff)
		if sleepErr := c.sleep(ctx, backoff); sleepErr != nil {
			log.Debug("blocked backoff interrupted", "error", sleepErr)
		}
	}
	return err
}

func (c *Checker) emit(ctx context.Context, log *slog.Logger, p store.Product, result scraper.FetchResult, drop store.Drop, d Decision) int {
	base := notify.Message{
		Code:  p.Code,
		Title: p.Title,
		URL:   p.URL,
		Price: result.Price,
	}
	sent := 0

	switch d.StockAlert {
	case notify.KindBackInStock:
		for i := 1; i <= c.opts.RestockRepeat; i++ {
			if i > 1 && c.opts.RestockDelay > 0 {
				if err := c.sleep(ctx, c.opts.RestockDelay); err != nil {
					log.Warn("back in stock burst interrupted", "sent", sent, "error", err)
					break
				}
			}
			msg := base
			msg.Kind = notify.KindBackInStock
			msg.Sequence = i
			msg.Repeat = c.opts.RestockRepeat
			sent += c.deliver(ctx, log, p.Owner, msg)
		}
	case notify.KindOutOfStock:
		msg := base
		msg.Kind = notify.KindOutOfStock
		sent += c.deliver(ctx, log, p.Owner, msg)
	}

	if d.PriceDrop {
		msg := base
		msg.Kind = notify.KindPriceDrop
		msg.OldPrice = drop.OldPrice
		msg.Percent = drop.Percent
		sent += c.deliver(ctx, log, p.Owner, msg)
	}
	return sent
}

// deliver reports 1 for an attempted call; failures are logged and never stop the caller.
func (c *Checker) deliver(ctx context.Context, log *slog.Logger, destination string, msg notify.Message) int {
	msg.ID = uuid.New()
	msg.CreatedAt = c.now()
	if err := c.notifier.Notify(ctx, destination, msg); err != nil {
		log.Error("notification failed", "kind", msg.Kind, "sequence", msg.Sequence, "error", err)
	}
	return 1
}
