package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/geniass/stockwatch/pkg/cache"
	"github.com/geniass/stockwatch/pkg/config"
	dataio "github.com/geniass/stockwatch/pkg/io"
	"github.com/geniass/stockwatch/pkg/logging"
	"github.com/geniass/stockwatch/pkg/monitor"
	"github.com/geniass/stockwatch/pkg/notify"
	"github.com/geniass/stockwatch/pkg/scraper"
	"github.com/geniass/stockwatch/pkg/store"
)

var ConfigModule = fx.Module("config",
	fx.Provide(
		config.LoadConfig,
	),
)

var LoggerModule = fx.Module("logger",
	fx.Provide(
		NewLogger,
	),
)

var DBModule = fx.Module("db",
	fx.Provide(
		NewDB,
		NewStore,
	),
)

var CacheModule = fx.Module("cache",
	fx.Provide(
		NewCache,
	),
)

var ScraperModule = fx.Module("scraper",
	fx.Provide(
		NewFetcher,
		NewExtractor,
	),
)

var MonitorModule = fx.Module("monitor",
	fx.Provide(
		NewNotifier,
		NewRefreshLimiter,
		NewChecker,
		NewScheduler,
	),
)

var Module = fx.Options(
	ConfigModule,
	LoggerModule,
	DBModule,
	CacheModule,
	ScraperModule,
	MonitorModule,
)

func NewLogger(cfg config.Config) *slog.Logger {
	logger := logging.New(cfg.Log)
	slog.SetDefault(logger)
	return logger
}

func NewDB(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, cleanup, err := store.Connect(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			cleanup()
			return nil
		},
	})
	return pool, nil
}

func NewStore(pool *pgxpool.Pool, cfg config.Config, logger *slog.Logger) store.Store {
	return store.NewPostgres(pool, store.Options{
		Cooldown:      cfg.Sweep.Cooldown,
		DropThreshold: cfg.Alert.DropThreshold,
	}, logger)
}

func NewCache(lc fx.Lifecycle, cfg config.Config, logger *slog.Logger) (cache.Cache, error) {
	if cfg.Cache.Backend != config.CacheRedis {
		return cache.NewMemory(cfg.Cache.TTL), nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "redis at %s", cfg.Cache.RedisAddr)
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return client.Close()
		},
	})
	return cache.NewRedis(client, cfg.Cache.TTL, cfg.Cache.KeyPrefix, logger), nil
}

func NewFetcher(cfg config.Config, logger *slog.Logger) *scraper.Fetcher {
	return scraper.NewFetcher(scraper.Options{
		Timeout:    cfg.Fetch.Timeout,
		Limiter:    scraper.NewRateLimiter(cfg.Fetch.MinInterval, cfg.Fetch.JitterMin, cfg.Fetch.JitterMax),
		Identities: scraper.NewIdentityRotator(nil, cfg.Fetch.AcceptLanguage),
		Retry:      scraper.DefaultRetryPolicy(cfg.Fetch.MaxAttempts, cfg.Fetch.BackoffBase),
		Logger:     logger,
	})
}

func NewExtractor(cfg config.Config) *scraper.Extractor {
	return scraper.NewExtractor(scraper.ExtractorOptions{
		MinPrice: cfg.Alert.PriceMin,
		MaxPrice: cfg.Alert.PriceMax,
	})
}

func NewNotifier(cfg config.Config, logger *slog.Logger) (notify.Notifier, error) {
	notifiers := notify.Multi{notify.NewLogNotifier(logger)}
	if cfg.Outbox.Dir != "" {
		outbox, err := dataio.NewOutbox(cfg.Outbox.Dir)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, outbox)
	}
	return notifiers, nil
}

func NewRefreshLimiter(cfg config.Config) *monitor.RefreshLimiter {
	return monitor.NewRefreshLimiter(cfg.Refresh.PerMinute)
}

func NewChecker(
	st store.Store,
	c cache.Cache,
	f *scraper.Fetcher,
	e *scraper.Extractor,
	n notify.Notifier,
	r *monitor.RefreshLimiter,
	cfg config.Config,
	logger *slog.Logger,
) *monitor.Checker {
	return monitor.NewChecker(st, c, f, e, n, r, monitor.CheckerOptions{
		RestockRepeat:     cfg.Alert.RestockRepeat,
		RestockDelay:      cfg.Alert.RestockDelay,
		BlockedBackoffMin: cfg.Fetch.BlockedBackoffMin,
		BlockedBackoffMax: cfg.Fetch.BlockedBackoffMax,
		Logger:            logger,
	})
}

func NewScheduler(st store.Store, checker *monitor.Checker, cfg config.Config, logger *slog.Logger) *monitor.Scheduler {
	return monitor.NewScheduler(st, checker, monitor.SchedulerOptions{
		Interval:     cfg.Sweep.Interval,
		Batch:        cfg.Sweep.Batch,
		ItemDelayMin: cfg.Sweep.ItemDelayMin,
		ItemDelayMax: cfg.Sweep.ItemDelayMax,
		Logger:       logger,
	})
}

// RegisterScheduler runs the scheduler for the lifetime of the fx app.
func RegisterScheduler(lc fx.Lifecycle, s *monitor.Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				defer close(done)
				s.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
